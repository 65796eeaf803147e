package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("https://github.com/org/repo", "a.tex", "master", "pdflatex", "")
	b := Fingerprint("https://github.com/org/repo", "a.tex", "master", "pdflatex", "")
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestFingerprint_EachFieldMatters(t *testing.T) {
	base := []string{"https://github.com/org/repo", "a.tex", "master", "pdflatex", ""}
	ref := Fingerprint(base[0], base[1], base[2], base[3], base[4])

	for i := range base {
		mutated := append([]string(nil), base...)
		mutated[i] += "x"
		fp := Fingerprint(mutated[0], mutated[1], mutated[2], mutated[3], mutated[4])
		assert.NotEqual(t, ref, fp, "field %d should change the fingerprint", i)
	}
}

func TestFingerprint_FieldsDoNotBleed(t *testing.T) {
	// Moving a suffix between adjacent fields must not collide.
	a := Fingerprint("u", "ab", "c", "cmd", "")
	b := Fingerprint("u", "a", "bc", "cmd", "")
	assert.NotEqual(t, a, b)
}

func TestNewRequest_SetsFingerprint(t *testing.T) {
	req := NewRequest("https://github.com/org/repo", "a.tex", "master", "pdflatex", "src")
	assert.Equal(t, Fingerprint("https://github.com/org/repo", "a.tex", "master", "pdflatex", "src"), req.Fingerprint)
	assert.Equal(t, "src", req.Workdir)
}
