package export

import "fmt"

// Outcome counts what happened to the items of one folder. Outcomes of several
// folders are combined with Add.
type Outcome struct {
	Processed         int
	SkippedDuplicates int
	SkippedNonMail    int
	Errors            []error
}

// Add returns the field-wise sum of o and other. Neither operand is modified.
func (o Outcome) Add(other Outcome) Outcome {
	errs := make([]error, 0, len(o.Errors)+len(other.Errors))
	errs = append(errs, o.Errors...)
	errs = append(errs, other.Errors...)
	return Outcome{
		Processed:         o.Processed + other.Processed,
		SkippedDuplicates: o.SkippedDuplicates + other.SkippedDuplicates,
		SkippedNonMail:    o.SkippedNonMail + other.SkippedNonMail,
		Errors:            errs,
	}
}

// Messages renders the recorded errors for display.
func (o Outcome) Messages() []string {
	out := make([]string, 0, len(o.Errors))
	for _, err := range o.Errors {
		out = append(out, err.Error())
	}
	return out
}

// FolderError aborted the export of a whole folder.
type FolderError struct {
	Folder string
	Op     string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %q: %s: %v; folder skipped", e.Folder, e.Op, e.Err)
}

func (e *FolderError) Unwrap() error { return e.Err }

// ItemError is a failure confined to one item of a folder.
type ItemError struct {
	Folder    string
	Index     int
	Subject   string
	TimeToken string
	// Unclassified is set when the item's kind could not be read; Subject and
	// TimeToken are not known then.
	Unclassified bool
	Err          error
}

func (e *ItemError) Error() string {
	if e.Unclassified {
		return fmt.Sprintf("folder %q: item %d: %v; item skipped", e.Folder, e.Index+1, e.Err)
	}
	return fmt.Sprintf("folder %q: item %q (time: %s): %v", e.Folder, e.Subject, e.TimeToken, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
