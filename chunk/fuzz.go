package chunk

import "github.com/usmkit/usmkit/internal/bio"

// Fuzz is a go-fuzz entry point exercising the chunk framer's bounds
// checking directly against untrusted byte sequences.
func Fuzz(data []byte) int {
	r := bio.NewReader(data)
	c, err := Read(r)
	if err != nil {
		return 0
	}
	w := bio.NewWriter(int(c.Size))
	Write(w, c)
	return 1
}
