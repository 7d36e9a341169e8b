package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractCat reads OpenDocument text and RTF files. The format is chosen from the file
// extension, so this takes a path rather than bytes.
func extractCat(path string) ([]Page, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	text, err = extractPlain([]byte(text))
	if err != nil {
		return nil, err
	}
	return singlePage(text), nil
}
