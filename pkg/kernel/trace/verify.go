package trace

import (
	"bufio"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VerifyResult is the outcome of verifying a trace.
type VerifyResult struct {
	EventCount     int    `json:"event_count"`
	Valid          bool   `json:"valid"`
	BrokenAt       int    `json:"broken_at"` // 1-based event number, -1 if intact
	Sealed         bool   `json:"sealed"`    // ends with session_end
	Signed         bool   `json:"signed"`
	SignatureOK    bool   `json:"signature_ok"`
	SignatureNoKey bool   `json:"signature_no_key"` // signed, but SigningKeyEnv is unset
	SigningKeyID   string `json:"signing_key_id,omitempty"`
	ChainHash      string `json:"chain_hash,omitempty"`
	Error          string `json:"error,omitempty"`
}

// VerifyFile verifies the hash chain and optional signature of a trace file.
func VerifyFile(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Verify(f)
}

// Verify walks the chain and, when the trace is sealed, checks the
// chain hash and HMAC signature of the session_end event.
func Verify(r io.Reader) (*VerifyResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	broken := func(n int, format string, args ...any) *VerifyResult {
		return &VerifyResult{EventCount: n, BrokenAt: n, Error: fmt.Sprintf(format, args...)}
	}

	expected := genesisHash
	count := 0
	var last Event
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		count++
		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return broken(count, "event %d: invalid JSON: %v", count, err), nil
		}
		if evt.PrevHash != expected {
			return broken(count, "event %d: prev_hash mismatch (expected %.16s…, got %.16s…)", count, expected, evt.PrevHash), nil
		}
		expected = hashLine(line)
		last = evt
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	res := &VerifyResult{EventCount: count, Valid: true, BrokenAt: -1}
	if last.Type != EventSessionEnd {
		return res, nil
	}
	res.Sealed = true
	res.ChainHash, _ = last.Data["chain_hash"].(string)
	if res.ChainHash != last.PrevHash {
		res.Valid = false
		res.BrokenAt = count
		res.Error = "session_end chain_hash does not match the chain"
		return res, nil
	}
	sig, ok := last.Data["signature"].(string)
	if !ok {
		return res, nil
	}
	res.Signed = true
	res.SigningKeyID, _ = last.Data["signing_key_id"].(string)
	key := os.Getenv(SigningKeyEnv)
	if key == "" {
		res.SignatureNoKey = true
		return res, nil
	}
	res.SignatureOK = hmac.Equal([]byte(sig), []byte(sign(key, res.ChainHash)))
	return res, nil
}
