package protocol

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode(t *testing.T) {
	tests := map[string]struct {
		frame   string
		want    Packet
		wantErr bool
	}{
		"bare_kind": {
			frame: `{"kind":"break"}`,
			want:  Packet{Kind: KindBreak},
		},
		"with_contents": {
			frame: `{"kind":"chat","contents":["{\"messages\":[\"hi\"]}"]}`,
			want:  Packet{Kind: KindChat, Contents: []string{`{"messages":["hi"]}`}},
		},
		"missing_kind": {
			frame:   `{"contents":["x"]}`,
			wantErr: true,
		},
		"not_json": {
			frame:   `kind=login`,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr = %t", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("packet did not match expected; diff:\n%s", diff)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	packet := Make(KindSettlement, &SettlementDetails{
		Step:  SettlementAdd,
		Tile:  "104",
		Owner: "ada",
	})

	frame, err := packet.Encode()
	if err != nil {
		t.Fatalf("error encoding packet: %v", err)
	}
	if !bytes.HasSuffix(frame, []byte("\n")) {
		t.Error("expected frame to be newline terminated")
	}
	if bytes.Count(frame, []byte("\n")) != 1 {
		t.Error("expected exactly one newline per frame")
	}

	decoded, err := Decode(bytes.TrimRight(frame, "\n"))
	if err != nil {
		t.Fatalf("error decoding frame: %v", err)
	}

	var details SettlementDetails
	if err := decoded.Payload(&details); err != nil {
		t.Fatalf("error unmarshaling payload: %v", err)
	}
	if details.Tile != "104" || details.Owner != "ada" {
		t.Errorf("unexpected payload %+v", details)
	}
}

func TestPayloadEmptyContents(t *testing.T) {
	var details SettlementDetails
	if err := New(KindSettlement).Payload(&details); err == nil {
		t.Error("expected error for packet with no payload")
	}
}
