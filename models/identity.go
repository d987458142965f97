package models

// VerificationState of an acting identity.
type VerificationState string

const (
	VerificationAnonymous VerificationState = "anonymous"
	VerificationVerified  VerificationState = "verified"
)

// Identity is the acting subject. The SubjectID stays stable regardless of
// verification state; Phone is set only once the identity is verified.
type Identity struct {
	SubjectID         string            `json:"subject_id"`
	VerificationState VerificationState `json:"verification_state"`
	Phone             string            `json:"phone,omitempty"`
}

// Verified reports whether the identity completed phone verification.
func (i *Identity) Verified() bool {
	return i != nil && i.VerificationState == VerificationVerified
}
