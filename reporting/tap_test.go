package reporting

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLineOnly(t *testing.T) {
	var buf bytes.Buffer
	NewTAPReporter(&buf, 0)
	assert.Equal(t, "1..0\n", buf.String())
}

func TestPlanThenOneLinePerCase(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var buf bytes.Buffer
			r := NewTAPReporter(&buf, n)
			for i := 0; i < n; i++ {
				r.Success(fmt.Sprintf("case %d", i))
			}

			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			require.Len(t, lines, n+1)
			assert.Equal(t, fmt.Sprintf("1..%d", n), lines[0])
			for i := 0; i < n; i++ {
				assert.Equal(t, fmt.Sprintf("ok %d - case %d", i, i), lines[i+1])
			}
		})
	}
}

func TestIndicesIncrementAcrossOutcomes(t *testing.T) {
	var buf bytes.Buffer
	r := NewTAPReporter(&buf, 3)

	r.Success("first")
	r.Failure("second", "boom")
	r.Success("third")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "1..3", lines[0])
	assert.Equal(t, "ok 0 - first", lines[1])
	assert.Equal(t, "not ok 1 - second # Exception:", lines[2])
	assert.Equal(t, "boom", lines[3])
	assert.Equal(t, "ok 2 - third", lines[4])
}

func TestFailureRendersMultilineFault(t *testing.T) {
	var buf bytes.Buffer
	r := NewTAPReporter(&buf, 1)

	r.Failure("exploding case", "string: kaboom\ngoroutine 1 [running]:\nmain.main()\n")

	want := "1..1\n" +
		"not ok 0 - exploding case # Exception:\n" +
		"string: kaboom\n" +
		"goroutine 1 [running]:\n" +
		"main.main()\n"
	assert.Equal(t, want, buf.String())
}

func TestFailureWithEmptyFault(t *testing.T) {
	var buf bytes.Buffer
	r := NewTAPReporter(&buf, 1)
	r.Failure("silent failure", "")
	assert.Equal(t, "1..1\nnot ok 0 - silent failure # Exception:\n", buf.String())
}

func TestFaultOutputIsAnsiStripped(t *testing.T) {
	var buf bytes.Buffer
	r := NewTAPReporter(&buf, 1)
	r.Failure("colorful", "\x1b[31mred alert\x1b[0m")
	assert.Contains(t, buf.String(), "red alert\n")
	assert.NotContains(t, buf.String(), "\x1b[31m")
}

func TestBufferedWriterIsFlushedPerLine(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriterSize(&buf, 1<<16)

	r := NewTAPReporter(bw, 2)
	assert.Equal(t, "1..2\n", buf.String(), "plan line must be flushed immediately")

	r.Success("first")
	assert.Equal(t, "1..2\nok 0 - first\n", buf.String(), "case lines must be flushed immediately")
}
