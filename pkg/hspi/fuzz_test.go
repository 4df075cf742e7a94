// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hspi

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 200
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 200
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomMessage returns printable bytes that never match a mode command
func randomMessage(rng *rand.Rand, maxLen int) []byte {
	msg := make([]byte, rng.Intn(maxLen+1))
	for i := range msg {
		msg[i] = byte('a' + rng.Intn(26))
	}
	return msg
}

// ============================================================
// Send Fuzz Tests
// ============================================================

// TestFuzzSend_RandomMessages sends random messages and verifies the slave
// saw exactly the announced payload
func TestFuzzSend_RandomMessages(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	eng, slave, _ := newTestEngine(t, nil)
	slave.TxBusy = rng.Intn(3)
	slave.RxBusy = rng.Intn(3)
	ctx := context.Background()

	for i := 0; i < rounds; i++ {
		msg := randomMessage(rng, 600)
		if err := eng.Send(ctx, msg); err != nil {
			t.Fatalf("round %d: Send failed: %v", i, err)
		}

		frames := slave.Frames()
		length := frames[len(frames)-2]
		payload := frames[len(frames)-1]
		if got := DecodeLength(length.Bytes[0], length.Bytes[1]); got != len(msg) {
			t.Fatalf("round %d: length frame %d, want %d", i, got, len(msg))
		}
		if length.Bytes[2] != 0x00 || length.Bytes[3] != MarkerOutgoing {
			t.Fatalf("round %d: length frame % x", i, length.Bytes)
		}
		if !bytes.Equal(payload.Bytes, msg) {
			t.Fatalf("round %d: payload mismatch", i)
		}
	}
}

// TestFuzzMode_RandomSequence drives random command sequences and checks
// the engine against the transition table
func TestFuzzMode_RandomSequence(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	eng, slave, _ := newTestEngine(t, nil)
	ctx := context.Background()
	choices := []string{CmdTransparentStart, CmdTransparentEnd, "AT\r\n", "data"}

	expected := ModeOff
	for i := 0; i < rounds; i++ {
		msg := choices[rng.Intn(len(choices))]

		if expected == ModeEnding {
			expected = ModeOff
		}
		wantLen := len(msg)
		switch {
		case msg == CmdTransparentStart:
			expected = ModeOn
		case msg == CmdTransparentEnd:
			expected = ModeEnding
			wantLen = 3
		}

		if err := eng.Send(ctx, []byte(msg)); err != nil {
			t.Fatalf("round %d: Send failed: %v", i, err)
		}
		if eng.Mode() != expected {
			t.Fatalf("round %d: after %q mode = %s, want %s", i, msg, eng.Mode(), expected)
		}
		cmds := slave.Commands()
		if got := len(cmds[len(cmds)-1]); got != wantLen {
			t.Fatalf("round %d: payload length %d, want %d", i, got, wantLen)
		}
	}
}

// ============================================================
// Receive Fuzz Tests
// ============================================================

// TestFuzzReceive_RandomChunks queues random responses and verifies every
// chunk arrives with its announced length and a bounded copy
func TestFuzzReceive_RandomChunks(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	eng, slave, _ := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < rounds; i++ {
		count := rng.Intn(4) + 1
		chunks := make([][]byte, count)
		for j := range chunks {
			chunks[j] = randomMessage(rng, 300)
		}
		slave.Queue(chunks...)

		buf := make([]byte, rng.Intn(256)+1)
		var got []Chunk
		n, err := eng.Receive(ctx, buf, func(c Chunk) {
			c.Data = append([]byte{}, c.Data...)
			got = append(got, c)
		})
		if err != nil {
			t.Fatalf("round %d: Receive failed: %v", i, err)
		}
		if n != count {
			t.Fatalf("round %d: chunks = %d, want %d", i, n, count)
		}
		for j, c := range got {
			if c.Length != len(chunks[j]) {
				t.Fatalf("round %d chunk %d: length %d, want %d", i, j, c.Length, len(chunks[j]))
			}
			want := chunks[j]
			if len(want) > len(buf) {
				want = want[:len(buf)]
			}
			if !bytes.Equal(c.Data, want) {
				t.Fatalf("round %d chunk %d: data mismatch", i, j)
			}
			if c.Truncated() != (len(chunks[j]) > len(buf)) {
				t.Fatalf("round %d chunk %d: truncated = %v", i, j, c.Truncated())
			}
		}
	}
}
