package agent

import "time"

// maxActionRecords 动作历史上限，超限淘汰最旧的一条。
// maxActionRecords caps the action history; the oldest record is evicted.
const maxActionRecords = 50

// ActionRecord 一次成功执行的动作记录
// ActionRecord captures one successfully executed action.
type ActionRecord struct {
	Action      Action
	Timestamp   time.Time
	Reversible  bool
	Inverse     Action
	Description string
}

// NewActionRecord 构造记录并计算可逆性。
// NewActionRecord builds a record and computes reversibility.
func NewActionRecord(a Action) ActionRecord {
	rec := ActionRecord{
		Action:      a,
		Timestamp:   time.Now().UTC(),
		Description: a.Describe(),
	}
	if inv, ok := a.Inverse(); ok {
		rec.Reversible = true
		rec.Inverse = inv
	}
	return rec
}

// ActionHistory 有界动作历史，只收成功记录，用于撤销最近一个可逆动作。
// ActionHistory is the bounded log of successful actions, kept solely to
// support undoing the last reversible one.
type ActionHistory struct {
	records []ActionRecord
}

func NewActionHistory() *ActionHistory {
	return &ActionHistory{}
}

// Add 追加一条成功记录。
// Add appends one successful record.
func (h *ActionHistory) Add(rec ActionRecord) {
	h.records = append(h.records, rec)
	if len(h.records) > maxActionRecords {
		h.records = h.records[1:]
	}
}

// PopLastReversible 取出并移除最近一条可逆记录。
// PopLastReversible removes and returns the newest reversible record.
func (h *ActionHistory) PopLastReversible() (ActionRecord, bool) {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Reversible {
			rec := h.records[i]
			h.records = append(h.records[:i], h.records[i+1:]...)
			return rec, true
		}
	}
	return ActionRecord{}, false
}

func (h *ActionHistory) Len() int {
	return len(h.records)
}
