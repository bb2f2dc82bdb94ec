package worker

import "testing"

func TestSplitNewestDeduplicatesPerQuestion(t *testing.T) {
	batch := []*eventPayload{
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "a", ClientTs: 1000, Revision: 1},
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "b", ClientTs: 2000, Revision: 2},
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q2", Kind: "answer", AnswerID: "c", ClientTs: 1500, Revision: 1},
	}

	answers, flags := splitNewest(batch)

	if len(flags) != 0 {
		t.Fatalf("flags = %d, want 0", len(flags))
	}
	if len(answers) != 2 {
		t.Fatalf("answers = %d, want 2 (q1 collapsed)", len(answers))
	}

	byQuestion := make(map[string]*eventPayload, len(answers))
	for _, p := range answers {
		byQuestion[p.QuestionID] = p
	}
	if got := byQuestion["q1"].AnswerID; got != "b" {
		t.Errorf("q1 answer = %q, want %q (newest revision)", got, "b")
	}
	if got := byQuestion["q2"].AnswerID; got != "c" {
		t.Errorf("q2 answer = %q, want %q", got, "c")
	}
}

func TestSplitNewestTieBreaksOnRevision(t *testing.T) {
	// Same client_ts: the higher revision is the later action.
	batch := []*eventPayload{
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "late", ClientTs: 1000, Revision: 7},
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "early", ClientTs: 1000, Revision: 3},
	}

	answers, _ := splitNewest(batch)
	if len(answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(answers))
	}
	if got := answers[0].AnswerID; got != "late" {
		t.Errorf("kept answer = %q, want %q", got, "late")
	}
}

func TestSplitNewestSeparatesKinds(t *testing.T) {
	// Answer and flag on the same question live in separate tables and must
	// not shadow each other.
	batch := []*eventPayload{
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "a", ClientTs: 1000, Revision: 1},
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "flag", Flagged: true, ClientTs: 2000, Revision: 1},
	}

	answers, flags := splitNewest(batch)
	if len(answers) != 1 || len(flags) != 1 {
		t.Fatalf("answers=%d flags=%d, want 1 and 1", len(answers), len(flags))
	}
	if answers[0].AnswerID != "a" {
		t.Errorf("answer = %q, want %q", answers[0].AnswerID, "a")
	}
	if !flags[0].Flagged {
		t.Error("flag not preserved")
	}
}

func TestSplitNewestKeepsAttemptsApart(t *testing.T) {
	// Two participants answering the same question must both survive.
	batch := []*eventPayload{
		{AttemptID: "at1", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "a", ClientTs: 1000, Revision: 1},
		{AttemptID: "at2", SubtestID: "s1", QuestionID: "q1", Kind: "answer", AnswerID: "b", ClientTs: 1000, Revision: 1},
	}

	answers, _ := splitNewest(batch)
	if len(answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(answers))
	}
}

func TestSplitNewestEmptyBatch(t *testing.T) {
	answers, flags := splitNewest(nil)
	if len(answers) != 0 || len(flags) != 0 {
		t.Errorf("answers=%d flags=%d, want empty", len(answers), len(flags))
	}
}
