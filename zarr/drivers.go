package zarr

// Bucket drivers for the URL schemes accepted by Open and NewDataset:
// file://, mem://, s3:// and gs://.
import (
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)
