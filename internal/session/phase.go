package session

// Phase identifies where a verification session sits in its lifecycle.
// Transitions are strictly forward except the explicit retry paths back to
// AwaitingSelfie (face mismatch) and AwaitingFaceMatch (extraction failure).
type Phase string

const (
	PhaseAwaitingSelfie    Phase = "awaiting_selfie"
	PhaseAwaitingFaceMatch Phase = "awaiting_face_match"
	PhaseExtracting        Phase = "extracting"
	PhaseReviewing         Phase = "reviewing"
	PhaseSubmitting        Phase = "submitting"
	PhaseCompleted         Phase = "completed"
)

// Flow distinguishes initial registration from login re-verification. Login
// flows stop after a positive face match; no extraction or classification is
// ever performed for them.
type Flow string

const (
	FlowRegistration  Flow = "registration"
	FlowLoginReverify Flow = "login"
)

// ParseFlow validates a flow name from the transport layer.
func ParseFlow(value string) (Flow, bool) {
	switch Flow(value) {
	case FlowRegistration, FlowLoginReverify:
		return Flow(value), true
	default:
		return "", false
	}
}
