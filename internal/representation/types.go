package representation

import (
	"strconv"
	"strings"
	"time"
)

type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

func userFromAPIResponse(raw Raw) *User {
	if raw == nil {
		return nil
	}
	id, _ := raw.int64("id")
	return &User{ID: id, Login: raw.str("login")}
}

type Issue struct {
	IID             int64     `json:"iid"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	MilestoneNumber *int64    `json:"milestone_number,omitempty"`
	State           string    `json:"state"`
	Assignees       []User    `json:"assignees,omitempty"`
	LabelNames      []string  `json:"label_names,omitempty"`
	Author          *User     `json:"author,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PullRequest     bool      `json:"pull_request"`
}

func (i *Issue) Kind() Kind         { return IssueKind }
func (i *Issue) ExternalID() string { return strconv.FormatInt(i.IID, 10) }

func IssueFromAPIResponse(raw Raw) (*Issue, error) {
	number, err := raw.requiredInt64(IssueKind, "number")
	if err != nil {
		return nil, err
	}
	createdAt, err := raw.requiredTime("created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := raw.requiredTime("updated_at")
	if err != nil {
		return nil, err
	}
	issue := &Issue{
		IID:             number,
		Title:           raw.str("title"),
		Description:     raw.str("body"),
		MilestoneNumber: milestoneNumber(raw),
		State:           openedOrClosed(raw.str("state")),
		LabelNames:      labelNames(raw),
		Author:          userFromAPIResponse(raw.object("user")),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		PullRequest:     raw.object("pull_request") != nil,
	}
	for _, assignee := range raw.objects("assignees") {
		issue.Assignees = append(issue.Assignees, *userFromAPIResponse(assignee))
	}
	return issue, nil
}

type PullRequest struct {
	IID                int64      `json:"iid"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	SourceBranch       string     `json:"source_branch"`
	SourceBranchSha    string     `json:"source_branch_sha"`
	SourceRepositoryID *int64     `json:"source_repository_id,omitempty"`
	TargetBranch       string     `json:"target_branch"`
	TargetBranchSha    string     `json:"target_branch_sha"`
	MilestoneNumber    *int64     `json:"milestone_number,omitempty"`
	Author             *User      `json:"author,omitempty"`
	Assignee           *User      `json:"assignee,omitempty"`
	State              string     `json:"state"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	MergedAt           *time.Time `json:"merged_at,omitempty"`
}

func (p *PullRequest) Kind() Kind         { return PullRequestKind }
func (p *PullRequest) ExternalID() string { return strconv.FormatInt(p.IID, 10) }

func PullRequestFromAPIResponse(raw Raw) (*PullRequest, error) {
	number, err := raw.requiredInt64(PullRequestKind, "number")
	if err != nil {
		return nil, err
	}
	createdAt, err := raw.requiredTime("created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := raw.requiredTime("updated_at")
	if err != nil {
		return nil, err
	}
	mergedAt, err := raw.time("merged_at")
	if err != nil {
		return nil, err
	}
	head := raw.object("head")
	base := raw.object("base")
	pr := &PullRequest{
		IID:             number,
		Title:           raw.str("title"),
		Description:     raw.str("body"),
		SourceBranch:    head.str("ref"),
		SourceBranchSha: head.str("sha"),
		TargetBranch:    base.str("ref"),
		TargetBranchSha: base.str("sha"),
		MilestoneNumber: milestoneNumber(raw),
		Author:          userFromAPIResponse(raw.object("user")),
		Assignee:        userFromAPIResponse(raw.object("assignee")),
		State:           openedOrClosed(raw.str("state")),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		MergedAt:        mergedAt,
	}
	if mergedAt != nil {
		pr.State = "merged"
	}
	if repo := head.object("repo"); repo != nil {
		if id, ok := repo.int64("id"); ok {
			pr.SourceRepositoryID = &id
		}
	}
	return pr, nil
}

type Milestone struct {
	IID         int64      `json:"iid"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	DueOn       *time.Time `json:"due_on,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (m *Milestone) Kind() Kind         { return MilestoneKind }
func (m *Milestone) ExternalID() string { return strconv.FormatInt(m.IID, 10) }

func MilestoneFromAPIResponse(raw Raw) (*Milestone, error) {
	number, err := raw.requiredInt64(MilestoneKind, "number")
	if err != nil {
		return nil, err
	}
	dueOn, err := raw.time("due_on")
	if err != nil {
		return nil, err
	}
	createdAt, err := raw.requiredTime("created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := raw.requiredTime("updated_at")
	if err != nil {
		return nil, err
	}
	return &Milestone{
		IID:         number,
		Title:       raw.str("title"),
		Description: raw.str("description"),
		State:       raw.str("state"),
		DueOn:       dueOn,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// Note is a comment on an issue or a pull request.
type Note struct {
	NoteID       int64     `json:"note_id"`
	NoteableType string    `json:"noteable_type"`
	NoteableID   int64     `json:"noteable_id"`
	Author       *User     `json:"author,omitempty"`
	Body         string    `json:"note"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (n *Note) Kind() Kind         { return NoteKind }
func (n *Note) ExternalID() string { return strconv.FormatInt(n.NoteID, 10) }

func NoteFromAPIResponse(raw Raw) (*Note, error) {
	id, err := raw.requiredInt64(NoteKind, "id")
	if err != nil {
		return nil, err
	}
	createdAt, err := raw.requiredTime("created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := raw.requiredTime("updated_at")
	if err != nil {
		return nil, err
	}
	// issue_url ends in /issues/<number>; pull request comments are served through the issues API as well
	noteableType, noteableID := "Issue", int64(0)
	url := raw.str("issue_url")
	if url == "" {
		url = raw.str("pull_request_url")
		noteableType = "MergeRequest"
	}
	if idx := strings.LastIndex(url, "/"); idx != -1 {
		noteableID, _ = strconv.ParseInt(url[idx+1:], 10, 64)
	}
	return &Note{
		NoteID:       id,
		NoteableType: noteableType,
		NoteableID:   noteableID,
		Author:       userFromAPIResponse(raw.object("user")),
		Body:         raw.str("body"),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func milestoneNumber(raw Raw) *int64 {
	milestone := raw.object("milestone")
	if milestone == nil {
		return nil
	}
	number, ok := milestone.int64("number")
	if !ok {
		return nil
	}
	return &number
}

func labelNames(raw Raw) []string {
	var names []string
	for _, label := range raw.objects("labels") {
		names = append(names, label.str("name"))
	}
	return names
}

func openedOrClosed(state string) string {
	if state == "open" {
		return "opened"
	}
	return "closed"
}
