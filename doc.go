// Package ap2 implements the payment mandate lifecycle of the Agent Payments
// Protocol (AP2) for two cooperating agents: a merchant that issues mandates
// and a shopper that obtains the user's consent for them.
//
// # Merchant
//
// [NewMerchant] owns [PaymentMandate] records. A mandate is created PENDING by
// [Merchant.CreateBookingMandate], moves to AUTHORIZED once the shopper hands
// over the user's token through [Merchant.AuthorizeMandate], and is charged by
// [Merchant.ProcessAuthorizedPayment], which passes through PROCESSING to
// COMPLETED or FAILED. Use [NewMerchantHandler] to expose these operations
// over `net/http`.
//
// # Shopper
//
// [NewShopper] keeps one [PendingAuthorization] per mandate. The user sees the
// prompt from [RenderConsentPrompt] and answers through [Shopper.ConfirmPayment];
// only an approval derives an authorization token. [Shopper.SubmitAuthorization]
// forwards that token to the merchant through a [MerchantGateway], either the
// in-process [*Merchant] or a [MerchantClient]. Use [NewShopperHandler] to
// expose the shopper tools and receive mandate webhooks.
//
// ## How it works
//
//   - The merchant prices a booking and issues a PENDING mandate.
//   - The shopper shows the mandate to the user and records the decision.
//   - On approval the shopper derives a token and sends it to the merchant.
//   - The merchant accepts payment only for an AUTHORIZED mandate whose token matches.
//
// Handler options such as [WithSignatureVerifier], [WithRequireSignedRequests]
// and [WithAuthenticator] enforce canonical JSON request signatures and bearer
// API keys between the agents.
package ap2
