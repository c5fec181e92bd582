package testutil

// fileData holds one file to be written before a commit.
type fileData struct {
	path    string
	content string
	mode    uint32
	remove  bool
}

// FileOption configures a file during builder setup.
type FileOption func(*fileData)

// Mode sets the file permissions (default 0644).
func Mode(mode uint32) FileOption {
	return func(f *fileData) {
		f.mode = mode
	}
}

// commitData holds settings for the commit Build records.
type commitData struct {
	message string
	push    bool
	empty   bool
}

// CommitOption configures the commit recorded by Build.
type CommitOption func(*commitData)

// Message sets the commit message.
func Message(msg string) CommitOption {
	return func(c *commitData) {
		c.message = msg
	}
}

// Pushed pushes the commit to origin's DefaultBranch after recording it.
func Pushed() CommitOption {
	return func(c *commitData) {
		c.push = true
	}
}

// AllowEmpty records the commit even when nothing changed.
func AllowEmpty() CommitOption {
	return func(c *commitData) {
		c.empty = true
	}
}
