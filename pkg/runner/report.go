package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/fatih/color"
)

// reportWriter writes lines prefixed with the suite name, colorized by the suite name.
// Writers made by withSuite share the same lock, so lines from parallel suites don't interleave.
type reportWriter struct {
	wr         io.Writer
	suite      string
	monochrome bool
	lock       *sync.Mutex
}

func newReportWriter(wr io.Writer, monochrome bool) *reportWriter {
	return &reportWriter{wr: wr, monochrome: monochrome, lock: &sync.Mutex{}}
}

// withSuite creates a new reportWriter for the given suite
func (r *reportWriter) withSuite(suite string) *reportWriter {
	return &reportWriter{wr: r.wr, suite: suite, monochrome: r.monochrome, lock: r.lock}
}

// Printf writes formatted text, each line gets the suite prefix
func (r *reportWriter) Printf(format string, v ...any) {
	fmt.Fprintf(r, format, v...)
}

// Write writes the given byte slice with the colorized suite prefix for each line.
func (r *reportWriter) Write(p []byte) (n int, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	colorizer := r.suiteColorizer(r.suite)
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		line := scanner.Text()
		if r.suite != "" {
			line = fmt.Sprintf("[%s] %s", r.suite, line)
		}
		if _, err = io.WriteString(r.wr, colorizer("%s\n", line)); err != nil {
			return 0, err
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// suiteColorizer returns a function that formats a string with a color based on the suite name.
func (r *reportWriter) suiteColorizer(suite string) func(format string, a ...any) string {
	colors := []color.Attribute{
		color.FgHiRed, color.FgHiGreen, color.FgHiYellow,
		color.FgHiBlue, color.FgHiMagenta, color.FgHiCyan,
		color.FgRed, color.FgGreen, color.FgYellow,
		color.FgBlue, color.FgMagenta, color.FgCyan,
	}
	c := colors[int(crc32.ChecksumIEEE([]byte(suite))%uint32(len(colors)))]
	if r.monochrome {
		c = color.Reset
	}
	return color.New(c).SprintfFunc()
}
