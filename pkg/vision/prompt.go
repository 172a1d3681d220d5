package vision

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
)

// buildPrompt asks the model to transcribe names from a sign-in sheet,
// with the absent-student list as disambiguation context.
func buildPrompt(absentStudentNames []string) string {
	var b strings.Builder
	b.WriteString("This is a photo of a classroom sign-in sheet with handwritten student names.\n")
	b.WriteString("Transcribe every student name you can read.\n")

	if len(absentStudentNames) > 0 {
		b.WriteString("\nThe following enrolled students have not yet been marked present; ")
		b.WriteString("names on the sheet are most likely among them:\n")
		for _, name := range absentStudentNames {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	b.WriteString("\nRespond with one name per line and nothing else. ")
	b.WriteString("If you cannot read any names, respond with an empty message.")

	return b.String()
}

// parseNames extracts one name per non-empty line from the provider's
// text response.
func parseNames(content string) ([]string, error) {
	var names []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		names = append(names, trimmed)
	}

	if len(names) == 0 {
		return nil, NewError(KindNoNames, "provider read no names", false, apperrors.ErrNoNamesFound)
	}

	return names, nil
}

// detectMediaType sniffs the image format for the request payload.
// Unsupported formats are reported as an encoding failure before any
// network call.
func detectMediaType(image []byte) (string, error) {
	mediaType := http.DetectContentType(image)
	switch mediaType {
	case "image/jpeg", "image/png", "image/webp":
		return mediaType, nil
	default:
		return "", fmt.Errorf("%w: unsupported image format %s", apperrors.ErrImageEncodingFailed, mediaType)
	}
}
