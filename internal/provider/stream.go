package provider

import (
	"bytes"
	"strings"
)

// recordBuffer 可增长的字节缓冲：网络分片任意切分，完整记录从头部取走，
// 尾部的不完整记录留待下一批字节。
// recordBuffer is the growable byte buffer behind incremental decoding:
// network chunks split anywhere, complete records drain from the front, and a
// trailing partial record waits for the next arrival.
type recordBuffer struct {
	buf []byte
}

func (b *recordBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
}

// NextLine 取出一条以换行结尾的完整记录；无完整记录时返回 false。
// NextLine drains one newline-terminated record; false when none is complete.
// Invalid UTF-8 sequences are substituted with the replacement character, a
// record at a time. A rune split across chunks is still inside the buffer
// when its line delimiter arrives, so sanitizing per record is safe.
func (b *recordBuffer) NextLine() (string, bool) {
	i := bytes.IndexByte(b.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := b.buf[:i]
	b.buf = b.buf[i+1:]
	line = bytes.TrimSuffix(line, []byte("\r"))
	return strings.ToValidUTF8(string(line), "�"), true
}

// sseDecoder data:/空行事件帧解码器（text/event-stream）。
// sseDecoder decodes the data:/blank-line event framing (text/event-stream).
type sseDecoder struct {
	rb        recordBuffer
	dataLines []string
}

// Feed 喂入一批字节，返回已完整的事件负载。
// Feed appends bytes and returns the payloads of events completed so far.
func (d *sseDecoder) Feed(p []byte) []string {
	d.rb.Append(p)
	var events []string
	for {
		line, ok := d.rb.NextLine()
		if !ok {
			return events
		}
		if line == "" {
			if len(d.dataLines) > 0 {
				events = append(events, strings.Join(d.dataLines, "\n"))
				d.dataLines = d.dataLines[:0]
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			d.dataLines = append(d.dataLines, strings.TrimSpace(payload))
		}
		// Other SSE fields (event:, id:, comments) carry nothing here.
	}
}

// Flush 流结束时取出未被空行终结的事件。
// Flush returns the event left unterminated when the stream ends.
func (d *sseDecoder) Flush() (string, bool) {
	if len(d.dataLines) == 0 {
		return "", false
	}
	event := strings.Join(d.dataLines, "\n")
	d.dataLines = d.dataLines[:0]
	return event, true
}

// ndjsonDecoder 换行分隔 JSON 记录解码器。
// ndjsonDecoder decodes newline-delimited JSON records.
type ndjsonDecoder struct {
	rb recordBuffer
}

// Feed 喂入一批字节，返回已完整的 JSON 行。
// Feed appends bytes and returns the complete JSON lines so far.
func (d *ndjsonDecoder) Feed(p []byte) []string {
	d.rb.Append(p)
	var records []string
	for {
		line, ok := d.rb.NextLine()
		if !ok {
			return records
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, line)
	}
}
