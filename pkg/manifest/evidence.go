package manifest

// EvidenceDescriptor attaches an auxiliary proof artifact (for example a
// signed evaluation report) without encrypting it. The file itself lives
// under evidence/ in the archive and is covered by the file inventory.
type EvidenceDescriptor struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
}

// EvidenceEntryName returns the archive entry path for an evidence file.
func EvidenceEntryName(filename string) string {
	return "evidence/" + filename
}
