package ir

// EngineVersion is the AREA engine version reported by the health endpoint.
const EngineVersion = "0.1.0"
