// Package srt implements the SRT listener transport for ingest. Each
// accepted SRT connection carries one uplink byte stream, labelled by its
// SRT stream ID.
package srt
