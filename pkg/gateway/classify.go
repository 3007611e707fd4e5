package gateway

import (
	"strings"

	"hive/pkg/hive"
)

// InstructionType classifies an operator instruction.
type InstructionType string

// Instruction classes, most specific first.
const (
	TaskAssignment     InstructionType = "task_assignment"
	BugFix             InstructionType = "bug_fix"
	Testing            InstructionType = "testing"
	StatusInquiry      InstructionType = "status_inquiry"
	ControlCommand     InstructionType = "control_command"
	GeneralInstruction InstructionType = "general_instruction"
)

// classifications are checked in order; the first bucket containing a
// keyword wins. Keywords cover English and Japanese operator phrasing.
var classifications = []struct {
	kind     InstructionType
	keywords []string
}{
	{TaskAssignment, []string{"実装", "開発", "作成", "implement", "develop", "create"}},
	{BugFix, []string{"修正", "デバッグ", "fix", "debug", "bug"}},
	{Testing, []string{"テスト", "test", "qa", "品質"}},
	{StatusInquiry, []string{"状況", "進捗", "status", "progress"}},
	{ControlCommand, []string{"停止", "中止", "stop", "cancel"}},
}

// urgentKeywords and importantKeywords drive priority derivation before
// the per-class defaults apply.
var (
	urgentKeywords    = []string{"緊急", "急", "urgent", "critical", "immediately"}
	importantKeywords = []string{"重要", "高", "high", "important"}
)

// taskKeywords mark an instruction as actionable work worth a task row.
var taskKeywords = []string{
	"実装", "開発", "作成", "修正", "テスト", "デバッグ",
	"implement", "develop", "create", "fix", "test", "debug",
	"作って", "直して", "書いて", "やって",
}

// Classify buckets an instruction by its first matching keyword set.
func Classify(text string) InstructionType {
	lower := strings.ToLower(text)
	for _, c := range classifications {
		if containsAny(lower, c.keywords) {
			return c.kind
		}
	}
	return GeneralInstruction
}

// derivePriority maps an instruction to a message priority: urgency words
// win, then importance words, then the class default.
func derivePriority(text string, kind InstructionType) hive.MsgPriority {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, urgentKeywords):
		return hive.MsgUrgent
	case containsAny(lower, importantKeywords):
		return hive.MsgHigh
	}
	switch kind {
	case BugFix, ControlCommand:
		return hive.MsgHigh
	case TaskAssignment, Testing:
		return hive.MsgNormal
	default:
		return hive.MsgLow
	}
}

// wantsTask reports whether the instruction asks for concrete work.
func wantsTask(text string) bool {
	return containsAny(strings.ToLower(text), taskKeywords)
}

// maxTitleRunes bounds auto-generated task titles.
const maxTitleRunes = 50

// taskTitle derives a task title from the instruction: the leading text,
// ellipsis-truncated on rune boundaries past 50 characters.
func taskTitle(text string) string {
	title := strings.TrimSpace(text)
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes-3]) + "..."
	}
	return title
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
