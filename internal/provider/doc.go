// Package provider holds thin clients for the external APIs reactions and
// pollers talk to: GitHub, Google Calendar and Gmail, Twilio, Reddit, SMTP,
// and an ERC-20 USDC contract.
//
// Clients only translate between Go values and the provider's wire format.
// Credentials are passed per call where they belong to an identity, and held
// by the client where they belong to the deployment.
package provider
