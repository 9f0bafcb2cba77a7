package inference

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//SubprocessConfig describes how to start a python detector worker
type SubprocessConfig struct {
	Python      string
	Script      string
	Weights     string
	Classes     int
	MinSizeTest int //0 keeps the native input size
	Device      string
	RGB         bool
}

func (c SubprocessConfig) args() []string {
	args := []string{
		c.Script,
		"--weights", c.Weights,
		"--classes", strconv.Itoa(c.Classes),
		"--device", c.Device,
	}
	if c.MinSizeTest > 0 {
		args = append(args, "--min-size", strconv.Itoa(c.MinSizeTest))
	}
	if c.RGB {
		args = append(args, "--rgb")
	}
	return args
}

type wireImage struct {
	Data   string `json:"data"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type wireRequest struct {
	Images []wireImage `json:"images"`
}

type wireInstance struct {
	Box   [4]float64 `json:"box"`
	Class int        `json:"class"`
	Score float64    `json:"score"`
	Mask  string     `json:"mask"`
}

type wireResponse struct {
	Instances [][]wireInstance `json:"instances"`
	Error     string           `json:"error"`
}

//SubprocessModel runs a detector inside a long lived python process speaking one JSON document per line
//over stdin/stdout. Requests are answered in order, so Predict calls are serialized.
type SubprocessModel struct {
	cfg    SubprocessConfig
	log    logrus.FieldLogger
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	exited chan struct{}
}

//StartSubprocess spawns the python worker. The process lives until Close or until ctx is done.
func StartSubprocess(ctx context.Context, cfg SubprocessConfig, l logrus.FieldLogger) (*SubprocessModel, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Weights == "" || cfg.Script == "" {
		return nil, fmt.Errorf("StartSubprocess: script and weights are required")
	}

	cmd := exec.CommandContext(ctx, cfg.Python, cfg.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("StartSubprocess: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("StartSubprocess: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("StartSubprocess: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("StartSubprocess: %w", err)
	}

	m := &SubprocessModel{
		cfg:    cfg,
		log:    l.WithFields(logrus.Fields{"weights": cfg.Weights, "pid": cmd.Process.Pid}),
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1<<20),
		exited: make(chan struct{}),
	}
	go m.logStderr(stderr)
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			m.log.WithField("error", err.Error()).Error("Detector process exited")
		}
		close(m.exited)
	}()

	m.log.Info("Detector process started")
	return m, nil
}

func (m *SubprocessModel) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "ERROR"), strings.Contains(line, "Traceback"):
			m.log.Error(line)
		case strings.Contains(line, "WARN"):
			m.log.Warn(line)
		default:
			m.log.Debug(line)
		}
	}
}

func (m *SubprocessModel) Predict(ctx context.Context, inputs []Input) ([]Instances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := wireRequest{Images: make([]wireImage, len(inputs))}
	for i, in := range inputs {
		buf, err := gocv.IMEncode(gocv.PNGFileExt, in.Image)
		if err != nil {
			return nil, fmt.Errorf("encode image %d: %w", i, err)
		}
		req.Images[i] = wireImage{Data: base64.StdEncoding.EncodeToString(buf.GetBytes()), Height: in.Height, Width: in.Width}
		buf.Close()
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := m.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	read := make(chan readResult, 1)
	go func() {
		l, err := m.stdout.ReadBytes('\n')
		read <- readResult{l, err}
	}()

	var res readResult
	select {
	case res = <-read:
	case <-m.exited:
		return nil, fmt.Errorf("detector process exited")
	case <-ctx.Done():
		//the response stream is out of sync from here on
		m.kill()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, fmt.Errorf("read response: %w", res.err)
	}

	var resp wireResponse
	if err := json.Unmarshal(res.line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detector: %s", resp.Error)
	}
	if len(resp.Instances) != len(inputs) {
		return nil, fmt.Errorf("detector returned %d results for %d images", len(resp.Instances), len(inputs))
	}

	out := make([]Instances, len(inputs))
	for i, wis := range resp.Instances {
		out[i], err = decodeInstances(wis, inputs[i])
		if err != nil {
			for _, o := range out[:i+1] {
				o.Close()
			}
			return nil, err
		}
	}
	return out, nil
}

func decodeInstances(wis []wireInstance, in Input) (Instances, error) {
	bounds := geometry.Resolution{Width: in.Width, Height: in.Height}.Rect()
	out := make(Instances, 0, len(wis))
	for _, wi := range wis {
		inst := Instance{
			Box:   geometry.NewBoundingBox(wi.Box[0], wi.Box[1], wi.Box[2], wi.Box[3]).Clip(bounds),
			Class: wi.Class,
			Score: wi.Score,
		}
		if wi.Mask != "" {
			raw, err := base64.StdEncoding.DecodeString(wi.Mask)
			if err != nil {
				out.Close()
				return nil, fmt.Errorf("decode mask: %w", err)
			}
			mat, err := gocv.IMDecode(raw, gocv.IMReadGrayScale)
			if err != nil || mat.Empty() {
				out.Close()
				return nil, fmt.Errorf("decode mask png: %v", err)
			}
			inst.Mask = geometry.MaskFromMat(mat)
			mat.Close()
		} else {
			inst.Mask = geometry.MaskFromRect(geometry.Resolution{Width: in.Width, Height: in.Height}, inst.Box)
		}
		out = append(out, inst)
	}
	return out, nil
}

func (m *SubprocessModel) kill() {
	if m.cmd.Process != nil {
		m.cmd.Process.Kill()
	}
}

//Close asks the process to exit by closing its stdin and kills it after a grace period
func (m *SubprocessModel) Close() error {
	m.stdin.Close()
	select {
	case <-m.exited:
	case <-time.After(2 * time.Second):
		m.log.Warn("Detector process did not exit, killing it")
		m.kill()
		<-m.exited
	}
	return nil
}
