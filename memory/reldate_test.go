package memory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
)

func TestKeywordPolicy_Resolve(t *testing.T) {
	policy := memory.DefaultDatePolicy()

	tests := []struct {
		name   string
		text   string
		offset int
		ok     bool
	}{
		{"english yesterday", "Yesterday I met Ravi", -1, true},
		{"english today", "took my pills today.", 0, true},
		{"romanized kal", "kal hum park gaye", -1, true},
		{"romanized aaj", "Aaj barish hui", 0, true},
		{"romanized parso", "parso shaadi thi", -2, true},
		{"devanagari kal", "कल मैं बाजार गया", -1, true},
		{"devanagari aaj", "आज धूप है", 0, true},
		{"devanagari parson", "परसों दीदी आई थी", -2, true},
		{"longest phrase wins", "the day before yesterday, not yesterday", -2, true},
		{"earliest of equal length", "today, unlike yesterday", 0, true},
		{"whole words only", "Kalpana visited the todaysomething shop", 0, false},
		{"no keyword", "Went for a walk", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, ok := policy.Resolve(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.offset, offset)
			}
		})
	}
}

func TestKeywordPolicy_CustomTable(t *testing.T) {
	policy := memory.NewKeywordPolicy(map[int][]string{
		-7: {"last week"},
		1:  {"tomorrow", ""},
	})

	offset, ok := policy.Resolve("Last week we went to Goa")
	require.True(t, ok)
	assert.Equal(t, -7, offset)

	offset, ok = policy.Resolve("doctor visit tomorrow")
	require.True(t, ok)
	assert.Equal(t, 1, offset)

	_, ok = policy.Resolve("yesterday")
	assert.False(t, ok)
}

func TestDatePolicyFunc(t *testing.T) {
	p := memory.DatePolicyFunc(func(string) (int, bool) { return -3, true })
	offset, ok := p.Resolve("anything")
	assert.True(t, ok)
	assert.Equal(t, -3, offset)

	_, ok = memory.NoDatePolicy.Resolve("yesterday")
	assert.False(t, ok)
}

func TestLoadKeywords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keywords:
  0: [today, hoy]
  -1: [yesterday, ayer]
  -2: ["day before yesterday", anteayer]
`), 0o600))

	keywords, err := memory.LoadKeywords(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"yesterday", "ayer"}, keywords[-1])

	policy := memory.NewKeywordPolicy(keywords)
	offset, ok := policy.Resolve("Ayer fuimos al mercado")
	require.True(t, ok)
	assert.Equal(t, -1, offset)
}

func TestLoadKeywords_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := memory.LoadKeywords(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("keywords: {}\n"), 0o600))
	_, err = memory.LoadKeywords(empty)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("keywords: [unclosed\n"), 0o600))
	_, err = memory.LoadKeywords(bad)
	assert.Error(t, err)
}
