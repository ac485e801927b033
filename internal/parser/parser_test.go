// internal/parser/parser_test.go
package parser

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	stages []Stage
}

func (o *recordingObserver) ObserveParse(stage Stage) {
	o.stages = append(o.stages, stage)
}

func TestParse_ValidInputRoundTrips(t *testing.T) {
	inputs := []string{
		`{"text":"hello"}`,
		`{"text":"Created app","fileTree":{"src/App.jsx":{"file":{"contents":"import x from 'y'\nexport default x"}},"README.md":{"file":{"deleted":true}}}}`,
		`{"text":"extra keys survive","model":"llama","fileTree":{}}`,
		`  {"fileTree":{"a.js":{"file":{"contents":"x"}}}}  `,
	}

	for _, in := range inputs {
		resp := Parse(in)
		require.False(t, resp.Error, "input %q", in)
		assert.Equal(t, StageDirect, resp.Stage)
		assert.JSONEq(t, strings.TrimSpace(in), resp.Payload())
	}
}

func TestParse_TruncatedContents(t *testing.T) {
	raw := `{"text":"hi","fileTree":{"a.js":{"file":{"contents":"const x = 1;`

	resp := Parse(raw)
	require.False(t, resp.Error, resp.ErrorMessage)
	assert.Equal(t, StageTruncation, resp.Stage)
	assert.Equal(t, "hi", resp.Text)
	require.Contains(t, resp.FileTree, "a.js")
	assert.Equal(t, KindUpsert, resp.FileTree["a.js"].Kind)
	assert.Equal(t, "const x = 1;", resp.FileTree["a.js"].Contents)
}

func TestParse_TruncatedAfterKeyAndComma(t *testing.T) {
	cases := map[string]string{
		"dangling colon":  `{"text":"hi","fileTree":`,
		"dangling comma":  `{"text":"hi",`,
		"dangling key":    `{"text":"hi","fileTr`,
		"dangling escape": `{"text":"hi\`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			resp := Parse(raw)
			require.False(t, resp.Error, resp.ErrorMessage)
			assert.Equal(t, StageTruncation, resp.Stage)
			assert.Equal(t, "hi", resp.Text)
		})
	}
}

func TestParse_RawControlCharactersInContents(t *testing.T) {
	raw := "{\"text\":\"ok\",\"fileTree\":{\"main.py\":{\"file\":{\"contents\":\"def f():\n\treturn \"x\"\n\"}}}}"

	resp := Parse(raw)
	require.False(t, resp.Error, resp.ErrorMessage)
	assert.Equal(t, StageEscaping, resp.Stage)
	assert.Equal(t, "def f():\n\treturn \"x\"\n", resp.FileTree["main.py"].Contents)
}

func TestParse_StrayBackslashInContents(t *testing.T) {
	raw := `{"fileTree":{"a.txt":{"file":{"contents":"C:\path\q"}}}}`

	resp := Parse(raw)
	require.False(t, resp.Error, resp.ErrorMessage)
	assert.Equal(t, `C:\path\q`, resp.FileTree["a.txt"].Contents)
}

func TestParse_ProseWrapperAndTrailingCommas(t *testing.T) {
	raw := "Sure! Here is the project:\n" +
		`{"text":"done","fileTree":{"a.js":{"file":{"contents":"x"}},},}` +
		"\nLet me know if you need anything else."

	resp := Parse(raw)
	require.False(t, resp.Error, resp.ErrorMessage)
	assert.Equal(t, StageEscaping, resp.Stage)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, "x", resp.FileTree["a.js"].Contents)
}

func TestParse_AggressiveRepairOfTextField(t *testing.T) {
	raw := "{\"text\":\"He said \"hi\" to me\nthen left\"}"

	resp := Parse(raw)
	require.False(t, resp.Error, resp.ErrorMessage)
	assert.Equal(t, StageAggressive, resp.Stage)
	assert.Equal(t, "He said \"hi\" to me\nthen left", resp.Text)
}

func TestParse_Failure(t *testing.T) {
	long := strings.Repeat("é", 3000)

	for _, raw := range []string{"", "   ", "not json at all", long, "[1,2,3]", "null"} {
		resp := Parse(raw)
		require.True(t, resp.Error, "input %q", raw)
		assert.Equal(t, StageFailed, resp.Stage)
		assert.NotEmpty(t, resp.ErrorMessage)
		assert.Contains(t, resp.Text, "malformed or truncated")
		assert.LessOrEqual(t, len([]rune(resp.OriginalResponse)), 1000)

		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(resp.Payload()), &payload))
		assert.Equal(t, true, payload["error"])
		assert.NotContains(t, payload, "fileTree")
	}

	resp := Parse(long)
	assert.Equal(t, strings.Repeat("é", 1000), resp.OriginalResponse)
}

func TestParse_NeverPanics(t *testing.T) {
	valid := `{"text":"hi","fileTree":{"a.js":{"file":{"contents":"const a = \"b\";\n"}}}}`
	rng := rand.New(rand.NewSource(42))

	inputs := []string{valid[:len(valid)/2], "\x00\x01\x02", `{"`, `{"a":`, `}}}}`, `"""`, `{\`}
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(64))
		rng.Read(buf)
		inputs = append(inputs, string(buf), valid[:rng.Intn(len(valid))])
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			resp := Parse(in)
			require.NotNil(t, resp)
			assert.True(t, json.Valid([]byte(resp.Payload())), "payload for %q", in)
		})
	}
}

func TestDecodeInstruction(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		kind     InstructionKind
		contents string
	}{
		{"wrapped upsert", `{"file":{"contents":"x"}}`, KindUpsert, "x"},
		{"bare upsert", `{"contents":"y"}`, KindUpsert, "y"},
		{"empty contents", `{"file":{"contents":""}}`, KindUpsert, ""},
		{"delete", `{"file":{"deleted":true}}`, KindDelete, ""},
		{"deleted false", `{"file":{"deleted":false}}`, KindInvalid, ""},
		{"both shapes", `{"file":{"deleted":true,"contents":"x"}}`, KindInvalid, ""},
		{"numeric contents", `{"file":{"contents":5}}`, KindInvalid, ""},
		{"empty file", `{"file":{}}`, KindInvalid, ""},
		{"file not object", `{"file":"x"}`, KindInvalid, ""},
		{"not object", `"x"`, KindInvalid, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := DecodeInstruction([]byte(tc.raw))
			assert.Equal(t, tc.kind, inst.Kind)
			assert.Equal(t, tc.contents, inst.Contents)
			if tc.kind == KindInvalid {
				assert.NotEmpty(t, inst.Reason)
			}
		})
	}
}

func TestInstruction_MarshalCanonicalShape(t *testing.T) {
	data, err := json.Marshal(map[string]Instruction{
		"a.js": Upsert("x\n"),
		"b.js": Delete(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.js":{"file":{"contents":"x\n"}},"b.js":{"file":{"deleted":true}}}`, string(data))
}

func TestResponse_ValidFiles(t *testing.T) {
	resp := Parse(`{"fileTree":{"a":{"file":{"contents":"x"}},"b":{"file":{}},"c":{"file":{"deleted":true}}}}`)
	require.False(t, resp.Error)
	assert.True(t, resp.HasFileTree())
	assert.Equal(t, 2, resp.ValidFiles())
}

func TestParser_ObserverSeesStage(t *testing.T) {
	obs := &recordingObserver{}
	p := New(nil, obs)

	p.Parse(`{"text":"a"}`)
	p.Parse(`{"text":"a`)
	p.Parse(`nope`)

	assert.Equal(t, []Stage{StageDirect, StageTruncation, StageFailed}, obs.stages)
}
