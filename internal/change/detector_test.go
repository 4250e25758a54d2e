package change

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_StructuralIgnoresArtifacts(t *testing.T) {
	d := NewDetector()

	old := `<?xml version="1.0"?>` + "\n" + `<article id="7" lang="en"><title>T</title></article>` + "\n"
	reserialized := `<article lang="en" id="7"><title>T</title></article>`

	res, err := d.Compare("7", old, reserialized)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Diff)
	assert.Equal(t, res.OldHash, res.NewHash)
}

func TestDetector_StructuralDetectsChange(t *testing.T) {
	d := NewDetector()

	res, err := d.Compare("7", `<a><b>x</b></a>`, `<a><b>y</b></a>`)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.NotEqual(t, res.OldHash, res.NewHash)
	assert.Contains(t, res.Diff, "-<a><b>x</b></a>")
	assert.Contains(t, res.Diff, "+<a><b>y</b></a>")
}

func TestDetector_SpaceBetweenInlineElementsIsAChange(t *testing.T) {
	d := NewDetector()

	res, err := d.Compare("x", "<Para><B>alpha</B> <I>beta</I></Para>", "<Para><B>alpha</B><I>beta</I></Para>")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.NotEmpty(t, res.Diff)
}

func TestDetector_TextFallback(t *testing.T) {
	d := NewDetector()

	res, err := d.Compare("t", "line one\r\nline two\n", "line one\nline two")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = d.Compare("t", "line one\n", "line one MARK\n")
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestDetector_MalformedXMLFallsBackToText(t *testing.T) {
	d := NewDetector()

	res, err := d.Compare("m", "<broken>\n", "<broken>")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestDetector_ExactMode(t *testing.T) {
	d := NewDetector(WithMode(ModeExact))
	assert.Equal(t, ModeExact, d.Mode())

	res, err := d.Compare("e", "<a/>\n", "<a/>")
	require.NoError(t, err)
	assert.True(t, res.Changed, "exact mode counts a trailing newline")
	assert.NotEmpty(t, res.Diff)

	res, err = d.Compare("e", "<a/>", "<a/>")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestDetector_Idempotent(t *testing.T) {
	d := NewDetector()
	in := `<doc b="1" a="2">text</doc>`

	once := d.Normalize(in)
	twice := d.Normalize(once)
	assert.Equal(t, once, twice)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStructural, m)

	m, err = ParseMode("exact")
	require.NoError(t, err)
	assert.Equal(t, ModeExact, m)

	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	assert.Len(t, Fingerprint("x"), 64)
	assert.Equal(t, Fingerprint("x"), Fingerprint("x"))
	assert.NotEqual(t, Fingerprint("x"), Fingerprint("y"))
}

func TestDetector_DiffGolden(t *testing.T) {
	d := NewDetector()
	old := "<doc>\n<title>Old</title>\n<body>same</body>\n</doc>\n"
	proposed := "<doc>\n<title>New</title>\n<body>same</body>\n</doc>\n"

	res, err := d.Compare("102", old, proposed)
	require.NoError(t, err)
	require.True(t, res.Changed)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "title_change", []byte(res.Diff))
}
