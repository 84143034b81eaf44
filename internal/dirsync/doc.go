// Package dirsync synchronises a local directory with a bucket key prefix.
//
// Push uploads a directory. A pass whose only failures are interrupted
// multipart sessions is resumed in place and does not count as a retry;
// any other partial failure aborts the open sessions and uploads the whole
// directory again, forcing overwrite, until MaxRetries passes have failed.
//
// Pull downloads a prefix into a directory and reports the local path of
// every object written. It does not retry.
package dirsync
