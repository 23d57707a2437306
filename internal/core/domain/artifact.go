package domain

// Artifact is a local file holding one source's serialised table.
// It is created by the materializer and owned by the run that created it.
type Artifact struct {
	// Source is the name of the source the artifact was produced for.
	Source string

	// Name is the file name, used verbatim on the remote store.
	Name string

	// Path is the local path of the file.
	Path string

	// Rows is the number of data rows written, header excluded.
	Rows int

	// Size is the file size in bytes.
	Size int64
}
