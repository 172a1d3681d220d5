package vision

import "context"

// NameRecognizer is the fallback recognition capability: given a sheet
// photo and the names still marked absent, return the names it can read.
// The absent list is sent as disambiguation context - narrowing the
// candidate set measurably improves recognition of hard-to-read
// handwriting. The response carries one name per non-empty line.
type NameRecognizer interface {
	RecognizeNames(ctx context.Context, image []byte, absentStudentNames []string) ([]string, error)
}

// RecognizerFactory creates a NameRecognizer for the current attempt.
// Creation resolves the stored credential at call time, so a key set or
// removed mid-session takes effect on the next escalation.
type RecognizerFactory interface {
	Create(ctx context.Context) (NameRecognizer, error)
}
