package domain

// BulkWriteResult summarises one unordered bulk upsert of file
// descriptors. Failed ops are tolerated; the writer logs them and
// moves on.
type BulkWriteResult struct {
	Upserted   int
	Updated    int
	Failed     int
	FirstError string
}
