package tasks

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	minTitleLength       = 3
	minDescriptionLength = 10
	dueDateLayout        = "2006-01-02"
)

// FieldErrors maps a form field name to its message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

// ValidateDraft applies the task form rules. It returns nil when the draft
// can be submitted.
func ValidateDraft(d Draft) FieldErrors {
	errs := FieldErrors{}
	checkTitle(errs, d.Title)
	checkDescription(errs, d.Description)
	checkDueDate(errs, d.DueDate)
	checkEnums(errs, d.Status, d.Priority)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidatePatch applies the same rules to the supplied fields only.
func ValidatePatch(p Patch) FieldErrors {
	errs := FieldErrors{}
	if p.Title != nil {
		checkTitle(errs, *p.Title)
	}
	if p.Description != nil {
		checkDescription(errs, *p.Description)
	}
	if p.DueDate != nil {
		checkDueDate(errs, *p.DueDate)
	}
	var status Status
	var priority Priority
	if p.Status != nil {
		status = *p.Status
		if status == "" {
			errs["status"] = "Status is required"
		}
	}
	if p.Priority != nil {
		priority = *p.Priority
		if priority == "" {
			errs["priority"] = "Priority is required"
		}
	}
	checkEnums(errs, status, priority)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkTitle(errs FieldErrors, title string) {
	switch t := strings.TrimSpace(title); {
	case t == "":
		errs["title"] = "Title is required"
	case len([]rune(t)) < minTitleLength:
		errs["title"] = fmt.Sprintf("Title must be at least %d characters long", minTitleLength)
	}
}

func checkDescription(errs FieldErrors, description string) {
	switch d := strings.TrimSpace(description); {
	case d == "":
		errs["description"] = "Description is required"
	case len([]rune(d)) < minDescriptionLength:
		errs["description"] = fmt.Sprintf("Description must be at least %d characters long", minDescriptionLength)
	}
}

func checkDueDate(errs FieldErrors, due string) {
	if strings.TrimSpace(due) == "" {
		errs["dueDate"] = "Due date is required"
		return
	}
	if _, err := NormalizeDueDate(due); err != nil {
		errs["dueDate"] = "Due date must be a valid date"
	}
}

func checkEnums(errs FieldErrors, status Status, priority Priority) {
	if status != "" && !status.Valid() {
		errs["status"] = "Status must be TODO, IN_PROGRESS or COMPLETED"
	}
	if priority != "" && !priority.Valid() {
		errs["priority"] = "Priority must be LOW, MEDIUM or HIGH"
	}
}

// NormalizeDueDate reduces a date or RFC 3339 timestamp to YYYY-MM-DD.
func NormalizeDueDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dueDateLayout, s); err == nil {
		return t.Format(dueDateLayout), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("invalid due date %q", s)
	}
	return t.Format(dueDateLayout), nil
}
