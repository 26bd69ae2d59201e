// README: Envelope codes pushed over courier connections.
package dispatch

// Outbound envelopes are {code, data}. Each event carries a distinct code so
// thin clients can switch on it without inspecting the payload.
const (
	CodeSucceed         = 200
	CodeOrderOffered    = 201
	CodeOfferTimedOut   = 202
	CodeOfferRejected   = 203
	CodeOrderAccepted   = 204
	CodeInDelivery      = 205
	CodeOrderDelivered  = 206
	CodeValidationError = 400
)
