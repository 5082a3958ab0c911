package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/raphaelgruber/triage-go/internal/models"
)

// chunkReader delivers each chunk as one Read call, mimicking network
// fragment arrival.
type chunkReader struct {
	chunks []string
	pos    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	r.pos++
	return n, nil
}

// failingReader emits one chunk, then fails.
type failingReader struct {
	chunk string
	sent  bool
	err   error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.chunk), nil
	}
	return 0, r.err
}

// collect drains a decoder into text and metadata.
func collect(t *testing.T, d *Decoder) (string, *Metadata) {
	t.Helper()

	var text strings.Builder
	var meta *Metadata

	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return text.String(), meta
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}

		switch ev.Type {
		case EventTextDelta:
			if meta != nil {
				t.Fatal("text delta after final metadata")
			}
			text.WriteString(ev.Text)
		case EventFinalMetadata:
			m := ev.Meta
			meta = &m
		}
	}
}

func TestDecoder_TextAndMetadata(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"Chest pain can be serious. ",
		"Please seek care promptly.",
		"\nMETADATA:" + `{"urgency": "High", "stage": "emergency", "data": null}`,
	}}

	text, meta := collect(t, NewDecoder(r))

	if want := "Chest pain can be serious. Please seek care promptly.\n"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if meta == nil {
		t.Fatal("expected final metadata")
	}
	if meta.Urgency != models.UrgencyHigh {
		t.Errorf("urgency = %q, want High", meta.Urgency)
	}
	if meta.Stage != models.StageEmergency {
		t.Errorf("stage = %q, want emergency", meta.Stage)
	}
}

// The decoded result must not depend on how the stream was fragmented.
func TestDecoder_SplitInvariance(t *testing.T) {
	full := "You should rest and hydrate. See a doctor if it persists.\nMETADATA:" +
		`{"urgency": "Low", "stage": "advice", "data": null}`

	splits := [][]string{
		{full},
		{full[:10], full[10:]},
		// sentinel split across three fragments
		{full[:60], full[60:62], full[62:64], full[64:]},
	}
	// byte-by-byte
	var single []string
	for i := 0; i < len(full); i++ {
		single = append(single, full[i:i+1])
	}
	splits = append(splits, single)

	var wantText string
	var wantMeta *Metadata
	for i, chunks := range splits {
		text, meta := collect(t, NewDecoder(&chunkReader{chunks: chunks}))
		if i == 0 {
			wantText, wantMeta = text, meta
			if meta == nil {
				t.Fatal("expected metadata in reference split")
			}
			continue
		}
		if text != wantText {
			t.Errorf("split %d: text = %q, want %q", i, text, wantText)
		}
		if meta == nil || *meta != *wantMeta {
			t.Errorf("split %d: meta = %+v, want %+v", i, meta, wantMeta)
		}
	}
}

func TestDecoder_MultibyteRuneSplit(t *testing.T) {
	// "Kopfschmerzen überall" with the two-byte ü split across chunks.
	full := "Kopfschmerzen überall"
	raw := []byte(full)
	var splitAt int
	for i, b := range raw {
		if b >= 0xC0 {
			splitAt = i + 1
			break
		}
	}

	text, _ := collect(t, NewDecoder(&chunkReader{chunks: []string{
		string(raw[:splitAt]), string(raw[splitAt:]),
	}}))

	if text != full {
		t.Errorf("text = %q, want %q", text, full)
	}
	if !strings.Contains(text, "ü") {
		t.Error("multibyte rune was corrupted by the chunk boundary")
	}
}

func TestDecoder_MalformedMetadata(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"Take it easy today.",
		"\nMETADATA:{not json at all",
	}}

	text, meta := collect(t, NewDecoder(r))

	if want := "Take it easy today.\n"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want none for malformed payload", meta)
	}
}

func TestDecoder_NoMetadata(t *testing.T) {
	text, meta := collect(t, NewDecoder(&chunkReader{chunks: []string{"Hello", " there"}}))

	if text != "Hello there" {
		t.Errorf("text = %q", text)
	}
	if meta != nil {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

// A trailing sentinel prefix that never completes is ordinary text.
func TestDecoder_DanglingSentinelPrefix(t *testing.T) {
	text, meta := collect(t, NewDecoder(&chunkReader{chunks: []string{"All good. MET"}}))

	if text != "All good. MET" {
		t.Errorf("text = %q", text)
	}
	if meta != nil {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestDecoder_EmptyStream(t *testing.T) {
	text, meta := collect(t, NewDecoder(&chunkReader{}))

	if text != "" || meta != nil {
		t.Errorf("text = %q, meta = %+v, want empty", text, meta)
	}
}

func TestDecoder_MetadataWithPayload(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"Nearby options below.\nMETADATA:",
		`{"urgency": "Moderate", "stage": "hospital_search", "data": {"type": "hospital_list", "hospitals": [{"name": "City General", "category": "emergency department", "maps_query": "City General Hospital"}]}}`,
	}}

	_, meta := collect(t, NewDecoder(r))

	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.Data == nil || meta.Data.Type != models.PayloadHospitalList {
		t.Fatalf("data = %+v, want hospital_list", meta.Data)
	}
	if len(meta.Data.Hospitals) != 1 || meta.Data.Hospitals[0].Name != "City General" {
		t.Errorf("hospitals = %+v", meta.Data.Hospitals)
	}
}

func TestDecoder_TransportErrorSurfaces(t *testing.T) {
	wantErr := errors.New("connection reset")
	d := NewDecoder(&failingReader{chunk: "partial", err: wantErr})

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if ev.Type != EventTextDelta || ev.Text != "partial" {
		t.Fatalf("first event = %+v", ev)
	}

	_, err = d.Next()
	if !errors.Is(err, wantErr) {
		t.Errorf("Next() error = %v, want %v", err, wantErr)
	}
}
