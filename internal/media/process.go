// Package media owns everything that touches audio bytes before they reach
// the engine: the ffmpeg subprocess wrapper, encode argument builders, the
// silence source, the bitrate probe, and the per-source track downloader.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// stopGrace is how long a process gets between SIGTERM and SIGKILL.
const stopGrace = 2 * time.Second

// Process wraps a running ffmpeg child whose stdout carries encoded audio.
type Process struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	stdout    io.ReadCloser
	stdin     io.Closer
	done      chan struct{}
	err       error
	stderrBuf bytes.Buffer
}

// StartProcess launches ffmpegPath with args. When stdin is non-nil it is
// wired to the child's standard input. The returned Process exposes the
// child's stdout as the audio stream.
func StartProcess(ctx context.Context, ffmpegPath string, args []string, stdin io.Reader) (*Process, error) {
	ctx2, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx2, ffmpegPath, args...)

	p := &Process{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	if stdin != nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			cancel()
			return nil, err
		}
		p.stdin = pipe
		go func() {
			io.Copy(pipe.(io.Writer), stdin)
			pipe.Close()
		}()
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	p.stdout = stdout
	cmd.Stderr = &p.stderrBuf

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Output is the child's stdout.
func (p *Process) Output() io.Reader { return p.stdout }

// Stop tears the child down: close stdin, SIGTERM, a short grace period,
// then SIGKILL. Blocks until the child has exited.
func (p *Process) Stop() {
	if p.stdin != nil {
		p.stdin.Close()
	}
	if p.cmd.Process != nil {
		p.cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		p.cancel()
		<-p.done
	}
	p.stdout.Close()
}

// Done is closed when the child exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the child exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Err returns the exit error, nil while running or after a clean exit.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stderr returns the accumulated diagnostic output.
func (p *Process) Stderr() string {
	return strings.TrimSpace(p.stderrBuf.String())
}

// PlayArgs builds the encode arguments for streaming one local file as MP3
// at the given bitrate (bits per second). seekSeconds > 0 starts playback
// mid-file; -re paces the encode at realtime so listeners stay live.
func PlayArgs(path string, seekSeconds, bitrate int) []string {
	args := []string{"-re"}
	if seekSeconds > 0 {
		args = append(args, "-ss", strconv.Itoa(seekSeconds))
	}
	args = append(args,
		"-i", path,
		"-f", "mp3",
		"-ab", fmt.Sprintf("%dk", bitrate/1000),
		"-",
	)
	return args
}

// SilenceEncodeArgs builds the arguments that turn raw zero PCM on stdin
// into the station's 128 kbps silence stream.
func SilenceEncodeArgs() []string {
	return []string{
		"-re",
		"-f", "s16le",
		"-ar", "44100",
		"-ac", "2",
		"-i", "pipe:0",
		"-f", "mp3",
		"-ab", "128k",
		"-",
	}
}

// TranscodeArgs builds the arguments converting a fetched file to MP3.
func TranscodeArgs(in, out string) []string {
	return []string{"-y", "-i", in, "-f", "mp3", "-aq", "6", out}
}
