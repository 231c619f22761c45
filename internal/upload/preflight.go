package upload

import (
	"errors"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

var ErrUnreadablePDF = errors.New("unreadable PDF")

// pdfPages opens f as a PDF and returns its page count. The parser panics on
// some malformed inputs, so panics are reported as ErrUnreadablePDF.
func pdfPages(f *os.File) (pages int, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.Name(), err)
	}

	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	n := r.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadablePDF)
	}
	return n, nil
}
