package transport

// ChunkThreshold is CHUNK_THRESHOLD (spec GLOSSARY): files whose size is
// strictly below this are sent as a single FileContent; at or above it,
// they are split into FileChunks.
const ChunkThreshold = 10 * 1024 * 1024

// ChunkSize is CHUNK_SIZE (spec GLOSSARY): the byte granularity of every
// FileChunk but the last one for a given file.
const ChunkSize = 1 * 1024 * 1024
