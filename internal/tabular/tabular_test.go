package tabular

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kgerr "github.com/aleksaelezovic/mediakg/pkg/errors"
	"github.com/aleksaelezovic/mediakg/pkg/model"
)

const base = "http://kg.local/"

func TestReadSkipsCommentsAndBlankLines(t *testing.T) {
	input := "# media facts\n" +
		"<http://kg.local/media/1>\t<http://example.org/hasName>\tagra^^String\n" +
		"\n" +
		"<http://kg.local/media/1>\t<http://example.org/width>\t640^^Long\n" +
		"<http://kg.local/media/1>\t<http://example.org/vec>\t[0.5,1]^^DoubleVector\n"

	quads, err := ReadAll(strings.NewReader(input), TSV, model.NewCodec(base))
	require.NoError(t, err)
	require.Len(t, quads, 3)

	assert.Equal(t, model.NewLocalURIValue("media/1"), quads[0].Subject)
	assert.Equal(t, model.NewURIValue("http://example.org/hasName"), quads[0].Predicate)
	assert.Equal(t, model.StringValue("agra"), quads[0].Object)
	assert.Equal(t, model.LongValue(640), quads[1].Object)
	assert.True(t, model.NewDoubleVector(0.5, 1).Equals(quads[2].Object))
}

func TestReadRejectsWrongColumnCount(t *testing.T) {
	input := "<a>\t<b>\tc\n<a>\t<b>\n"
	reader := NewReader(strings.NewReader(input), TSV, model.NewCodec(""))

	_, err := reader.Read()
	require.NoError(t, err)
	_, err = reader.Read()
	require.Error(t, err)
	assert.True(t, kgerr.IsInvalidInput(err))
	assert.Equal(t, 2, kgerr.FieldsOf(err)["line"])
}

func TestRoundTrip(t *testing.T) {
	codec := model.NewCodec(base)
	quads := []model.Quad{
		model.NewQuad(model.NewLocalURIValue("m/1"), model.NewURIValue("http://example.org/caption"), model.StringValue("tab\there, \"quoted\"\nand a newline")),
		model.NewQuad(model.StringValue("#hashtag"), model.NewURIValue("http://example.org/p"), model.DoubleValue(-2.5)),
		model.NewQuad(model.NewURIValue("http://example.org/x"), model.NewLocalURIValue("p"), model.StringValue(" leading space")),
		model.NewQuad(model.NewURIValue("http://example.org/x"), model.NewLocalURIValue("q"), model.NewLongVector(1, -2, 3)),
	}

	for _, format := range []Format{TSV, CSV} {
		t.Run(format.Name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteAll(&buf, format, codec, quads))

			got, err := ReadAll(&buf, format, codec)
			require.NoError(t, err)
			require.Len(t, got, len(quads))
			for i := range quads {
				assert.True(t, quads[i].Equals(got[i]), "quad %d: got %s, want %s", i, got[i], quads[i])
			}
		})
	}
}

func TestReaderEOF(t *testing.T) {
	reader := NewReader(strings.NewReader("# only a comment\n"), TSV, model.NewCodec(""))
	_, err := reader.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"", TSV},
		{"tsv", TSV},
		{".TSV", TSV},
		{"csv", CSV},
		{"text/csv", CSV},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseFormat("xml")
	require.Error(t, err)
	assert.True(t, kgerr.IsInvalidInput(err))
}
