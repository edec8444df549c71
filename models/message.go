package models

// MessageKind tags a Message travelling on a worker's filename stream.
type MessageKind int

const (
	// Filename carries the path of the next A matrix to be multiplied.
	Filename MessageKind = iota
	// EndOfStream tells the worker no more filenames will follow.
	EndOfStream
)

func (k MessageKind) String() string {
	switch k {
	case Filename:
		return "filename"
	case EndOfStream:
		return "end-of-stream"
	}
	return "unknown"
}

// Message is a single item of a FilenameStream. The end of a stream is its own kind rather than a reserved path, so
// no legal filename can be mistaken for it.
type Message struct {
	// Kind of the message.
	Kind MessageKind
	// JobID identifies one broadcast; every worker receives the same id for the same filename.
	JobID string
	// Path to the matrix file. Empty for EndOfStream.
	Path string
}

// NewFilename returns a Filename message.
func NewFilename(jobID, path string) Message {
	return Message{Kind: Filename, JobID: jobID, Path: path}
}

// NewEndOfStream returns the message that terminates a stream.
func NewEndOfStream() Message {
	return Message{Kind: EndOfStream}
}
