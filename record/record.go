// Package record 把广播过的状态写成 zstd 压缩的 JSONL，便于离线排查同步问题。
package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fruitmart/game"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Entry JSONL 中的一行
type Entry struct {
	Tick  int         `json:"tick"`
	At    time.Time   `json:"at"`
	State *game.State `json:"state"`
}

// Recorder 线程安全；每次 Record 都 flush，进程异常退出时最多丢一行
type Recorder struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// FileName 房间与角色对应的记录文件名
func FileName(code, role string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s.jsonl.zst", code, role, at.UTC().Format("20060102-150405"))
}

func Create(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create record dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open record file")
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "zstd writer")
	}
	return &Recorder{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

func (r *Recorder) Path() string { return r.path }

func (r *Recorder) Record(tick int, s *game.State) error {
	b, err := json.Marshal(Entry{Tick: tick, At: time.Now().UTC(), State: s})
	if err != nil {
		return errors.Wrap(err, "marshal entry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return errors.New("recorder closed")
	}
	if _, err := r.w.Write(b); err != nil {
		return errors.WithStack(err)
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return errors.WithStack(err)
	}
	if err := r.w.Flush(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(r.enc.Flush())
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	_ = r.w.Flush()
	err := r.enc.Close()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.w, r.enc, r.f = nil, nil, nil
	return errors.WithStack(err)
}

// Reader 顺序读取记录文件
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open record file")
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "zstd reader")
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	return &Reader{f: f, dec: dec, sc: sc}, nil
}

// Next 返回下一条记录；读完返回 io.EOF
func (r *Reader) Next() (Entry, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return Entry{}, errors.WithStack(err)
		}
		return Entry{}, io.EOF
	}
	var e Entry
	if err := json.Unmarshal(r.sc.Bytes(), &e); err != nil {
		return Entry{}, errors.Wrap(err, "decode entry")
	}
	return e, nil
}

func (r *Reader) Close() error {
	r.dec.Close()
	return errors.WithStack(r.f.Close())
}
