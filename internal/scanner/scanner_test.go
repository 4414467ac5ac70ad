package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/scouting-backend/internal/models"
)

const exampleScan = `{"teamNumber":"254","matchNumber":"12","name":"Al","comp_code":"CMPTX"}`

func fields(errs []FieldError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestDecodeShapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
	}{
		{"object", exampleScan, 1},
		{"qr_data wrapper", `{"qr_data":"{\"teamNumber\":254}"}`, 1},
		{"list", `[` + exampleScan + `,{"qr_data":"{\"teamNumber\":1}"}]`, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.payload))
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, payload := range []string{``, `not json`, `42`, `[1,2]`, `{"qr_data":"nope"}`, `{"qr_data":5}`} {
		_, err := Decode([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformed, payload)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		raw  Raw
		want []string
	}{
		{"example is valid", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX"}, nil},
		{"numbers as numbers", Raw{"teamNumber": 254.0, "matchNumber": 12.0, "name": "Al", "comp_code": "CMPTX", "startPos": 4.0, "isTipped": 1.0}, nil},
		{"team zero", Raw{"teamNumber": "0", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX"}, []string{"teamNumber"}},
		{"team too large", Raw{"teamNumber": 100000.0, "matchNumber": "12", "name": "Al", "comp_code": "CMPTX"}, []string{"teamNumber"}},
		{"team not a number", Raw{"teamNumber": "abc", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX"}, []string{"teamNumber"}},
		{"missing match", Raw{"teamNumber": "254", "name": "Al", "comp_code": "CMPTX"}, []string{"matchNumber"}},
		{"match 1000", Raw{"teamNumber": "254", "matchNumber": "1000", "name": "Al", "comp_code": "CMPTX"}, []string{"matchNumber"}},
		{"short name", Raw{"teamNumber": "254", "matchNumber": "12", "name": " A ", "comp_code": "CMPTX"}, []string{"name"}},
		{"long comp code", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "ABCDEFGHIJKLMNOPQ"}, []string{"comp_code"}},
		{"blank comp code", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "  "}, []string{"comp_code"}},
		{"ranges", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX", "startPos": 5.0, "driverRanking": 0.0, "defenseRanking": "x", "endClimb": -1.0}, []string{"startPos", "driverRanking", "defenseRanking", "endClimb"}},
		{"flags", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX", "isBroken": 2.0, "isDisabled": "yes", "isTipped": 0.0}, []string{"isBroken", "isDisabled"}},
		{"empty", Raw{}, []string{"teamNumber", "matchNumber", "name", "comp_code"}},
		{"text at limits", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX", "quantifier": strings.Repeat("q", 10), "comment": strings.Repeat("é", 256)}, nil},
		{"text too long", Raw{"teamNumber": "254", "matchNumber": "12", "name": "Al", "comp_code": "CMPTX", "quantifier": strings.Repeat("q", 11), "comment": strings.Repeat("c", 257)}, []string{"quantifier", "comment"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fields(Validate(tc.raw)))
		})
	}
}

func TestSanitize(t *testing.T) {
	raws, err := Decode([]byte(`{"teamNumber":"254","matchNumber":12,"name":" Al ","comp_code":"CMPTX",
		"autoPath":["sourceA"," B",""],"autoL4":"2","teleL1":"lots","comment":" ok "}`))
	require.NoError(t, err)

	rec := Sanitize(raws[0])
	assert.Equal(t, 254, rec.TeamNumber)
	assert.Equal(t, 12, rec.MatchNumber)
	assert.Equal(t, "Al", rec.ScoutName)
	assert.Equal(t, "CMPTX", rec.Event)
	assert.Equal(t, DefaultQuantifier, rec.Quantifier)
	assert.Equal(t, models.Path{"sourceA", "B"}, rec.AutoPath)
	assert.Equal(t, 2, rec.AutoL4)
	assert.Equal(t, 0, rec.TeleL1)
	assert.Equal(t, "ok", rec.Comment)
}

func TestFingerprintIgnoresID(t *testing.T) {
	a := Sanitize(Raw{"teamNumber": "254", "matchNumber": "12"})
	b := a
	b.ID = "other"
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.MatchNumber = 13
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	ok, err := d.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = d.Claim(ctx, "fp")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = d.Claim(ctx, "fp")
	assert.True(t, ok, "claim should expire")

	require.NoError(t, d.Release(ctx, "fp"))
	ok, _ = d.Claim(ctx, "fp")
	assert.True(t, ok)
}

func TestRedisDeduper(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewRedisDeduper(rdb, time.Minute)

	ok, err := d.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("scanner:seen:fp"))

	ok, err = d.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = d.Claim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, ok)
}

type fakePoster struct {
	mu    sync.Mutex
	calls [][]Raw
	err   error
	block chan struct{}
}

func (f *fakePoster) PostScans(ctx context.Context, scans []Raw) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, scans)
	return fmt.Sprintf("Successfully Sent %d records.", len(scans)), nil
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestUploaderSendsValidScan(t *testing.T) {
	p := &fakePoster{}
	u := NewUploader(p)

	conf, err := u.Submit(context.Background(), exampleScan)
	require.NoError(t, err)
	assert.Equal(t, "Successfully Sent 1 records.", conf)
	assert.Equal(t, 1, p.count())
}

func TestUploaderRejectsLocally(t *testing.T) {
	p := &fakePoster{}
	u := NewUploader(p)

	bad := strings.Replace(exampleScan, `"254"`, `"0"`, 1)
	_, err := u.Submit(context.Background(), bad)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"teamNumber"}, fields(verr.Fields))
	assert.Equal(t, 0, p.count(), "invalid scans must not reach the network")
}

func TestUploaderDropsRepeatOfPrevious(t *testing.T) {
	p := &fakePoster{}
	u := NewUploader(p)
	ctx := context.Background()

	_, err := u.Submit(ctx, exampleScan)
	require.NoError(t, err)
	_, err = u.Submit(ctx, exampleScan)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, p.count())
}

func TestUploaderDropsInFlightDuplicate(t *testing.T) {
	p := &fakePoster{block: make(chan struct{})}
	u := NewUploader(p)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := u.Submit(ctx, exampleScan)
		done <- err
	}()

	assert.Eventually(t, func() bool {
		u.mu.Lock()
		defer u.mu.Unlock()
		return u.inFlight[exampleScan]
	}, time.Second, 5*time.Millisecond)

	_, err := u.Submit(ctx, exampleScan)
	assert.ErrorIs(t, err, ErrDuplicate)

	close(p.block)
	require.NoError(t, <-done)
}

func TestUploaderFailureAllowsRetry(t *testing.T) {
	p := &fakePoster{err: errors.New("server down")}
	u := NewUploader(p)
	ctx := context.Background()

	_, err := u.Submit(ctx, exampleScan)
	require.Error(t, err)

	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()

	_, err = u.Submit(ctx, exampleScan)
	require.NoError(t, err)
	assert.Equal(t, 1, p.count())
}

func TestUploaderWithCorrector(t *testing.T) {
	p := &fakePoster{}
	var out bytes.Buffer
	u := NewUploader(p, WithCorrector(NewPromptCorrector(strings.NewReader("1678\n"), &out)))

	bad := strings.Replace(exampleScan, `"254"`, `"0"`, 1)
	_, err := u.Submit(context.Background(), bad)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Team number")

	require.Equal(t, 1, p.count())
	assert.Equal(t, "1678", p.calls[0][0]["teamNumber"])
}

func TestBufferFlushesAtThresholdAndSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pending.json")
	p := &fakePoster{}

	b, err := OpenBuffer(path, 3, p, nil)
	require.NoError(t, err)
	u := NewUploader(p, WithBuffer(b))

	_, err = u.Submit(ctx, exampleScan)
	require.NoError(t, err)
	_, err = u.Submit(ctx, strings.Replace(exampleScan, `"12"`, `"13"`, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, p.count())

	reopened, err := OpenBuffer(path, 3, p, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Pending())

	require.NoError(t, reopened.Add(ctx, Raw{"teamNumber": "1", "matchNumber": "1", "name": "Al", "comp_code": "CMPTX"}))
	assert.Equal(t, 1, p.count())
	assert.Len(t, p.calls[0], 3)
	assert.Equal(t, 0, reopened.Pending())
}

func TestBufferKeepsScansWhenFlushFails(t *testing.T) {
	ctx := context.Background()
	p := &fakePoster{err: errors.New("offline")}
	b, err := OpenBuffer(filepath.Join(t.TempDir(), "pending.json"), 1, p, nil)
	require.NoError(t, err)

	require.NoError(t, b.Add(ctx, Raw{"teamNumber": "1"}))
	assert.Equal(t, 1, b.Pending())
	assert.Error(t, b.Close(ctx))

	p.err = nil
	require.NoError(t, b.Close(ctx))
	assert.Equal(t, 0, b.Pending())
}

func TestDecodeImage(t *testing.T) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(exampleScan, gozxing.BarcodeFormat_QR_CODE, 300, 300, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))

	text, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, exampleScan, text)

	_, err = DecodeImage(strings.NewReader("not an image"))
	assert.Error(t, err)
}
