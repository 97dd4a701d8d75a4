package mapreduce

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/hupe1980/kmeansmr/blobstore"
)

// TextRecord is one input line split at its first tab.
type TextRecord struct {
	Key   string
	Value string
	Line  int
}

// SplitLine splits a "key<TAB>value" line. A line without a tab is all key.
func SplitLine(line string) (key, value string) {
	key, value, _ = strings.Cut(line, "\t")
	return key, value
}

// readRecords yields the non-blank lines of r. A trailing '\r' is dropped.
func readRecords(r io.Reader, maxLine int) iter.Seq2[TextRecord, error] {
	return func(yield func(TextRecord, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)
		n := 0
		for sc.Scan() {
			n++
			line := strings.TrimSuffix(sc.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			key, value := SplitLine(line)
			if !yield(TextRecord{Key: key, Value: value, Line: n}, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(TextRecord{Line: n + 1}, fmt.Errorf("read line %d: %w", n+1, err))
		}
	}
}

// ReadText yields every record of the named text blob.
func ReadText(ctx context.Context, store blobstore.Store, name string) iter.Seq2[TextRecord, error] {
	return func(yield func(TextRecord, error) bool) {
		r, err := store.Open(ctx, name)
		if err != nil {
			yield(TextRecord{}, err)
			return
		}
		defer r.Close()
		for rec, err := range readRecords(r, DefaultMaxLineBytes) {
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// ReadTextDir yields the records of every blob under prefix whose base name
// starts with the given file prefix, in name order.
func ReadTextDir(ctx context.Context, store blobstore.Store, dir, filePrefix string) iter.Seq2[TextRecord, error] {
	return func(yield func(TextRecord, error) bool) {
		names, err := store.List(ctx, strings.TrimSuffix(dir, "/")+"/"+filePrefix)
		if err != nil {
			yield(TextRecord{}, err)
			return
		}
		for _, name := range names {
			for rec, err := range ReadText(ctx, store, name) {
				if !yield(rec, err) || err != nil {
					return
				}
			}
		}
	}
}

// WriteText writes records as "key<TAB>value" lines to a new blob.
func WriteText(ctx context.Context, store blobstore.Store, name string, records iter.Seq2[string, string]) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for k, v := range records {
		if err := writeLine(bw, k, v); err != nil {
			_ = w.Abort()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

func writeLine(w *bufio.Writer, key, value string) error {
	if strings.ContainsAny(key, "\t\n") {
		return fmt.Errorf("key %q contains a tab or newline", key)
	}
	if strings.ContainsRune(value, '\n') {
		return fmt.Errorf("value for key %q contains a newline", key)
	}
	_, _ = w.WriteString(key)
	_ = w.WriteByte('\t')
	_, _ = w.WriteString(value)
	return w.WriteByte('\n')
}

// PartName returns the blob name of a reduce output file.
func PartName(dir, name string, task int) string {
	return fmt.Sprintf("%s/%s-r-%05d", strings.TrimSuffix(dir, "/"), name, task)
}

// taskOutput implements Output for one reduce task. Named outputs are
// created on first write.
type taskOutput struct {
	ctx   context.Context
	store blobstore.Store
	dir   string
	task  int

	files   map[string]*outputFile
	order   []string
	records int64
}

type outputFile struct {
	blob blobstore.WritableBlob
	w    *bufio.Writer
}

const mainOutput = "part"

func newTaskOutput(ctx context.Context, store blobstore.Store, dir string, task int) (*taskOutput, error) {
	o := &taskOutput{ctx: ctx, store: store, dir: dir, task: task, files: make(map[string]*outputFile)}
	if _, err := o.file(mainOutput); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *taskOutput) file(name string) (*outputFile, error) {
	if f, ok := o.files[name]; ok {
		return f, nil
	}
	blob, err := o.store.Create(o.ctx, PartName(o.dir, name, o.task))
	if err != nil {
		return nil, err
	}
	f := &outputFile{blob: blob, w: bufio.NewWriter(blob)}
	o.files[name] = f
	o.order = append(o.order, name)
	return f, nil
}

func (o *taskOutput) Write(key, value string) error {
	return o.WriteNamed(mainOutput, key, value)
}

func (o *taskOutput) WriteNamed(name, key, value string) error {
	if name == "" || strings.ContainsAny(name, "/\t\n") {
		return fmt.Errorf("invalid output name %q", name)
	}
	f, err := o.file(name)
	if err != nil {
		return err
	}
	if err := writeLine(f.w, key, value); err != nil {
		return err
	}
	o.records++
	return nil
}

func (o *taskOutput) commit() error {
	for _, name := range o.order {
		f := o.files[name]
		if err := f.w.Flush(); err != nil {
			o.abort()
			return err
		}
		if err := f.blob.Close(); err != nil {
			o.abort()
			return err
		}
		delete(o.files, name)
	}
	return nil
}

func (o *taskOutput) abort() {
	for _, f := range o.files {
		_ = f.blob.Abort()
	}
	clear(o.files)
}
