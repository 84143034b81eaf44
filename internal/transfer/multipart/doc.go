// Package multipart resumes interrupted multipart uploads.
//
// A resume lists the parts already stored for the session, uploads the
// missing or short parts from the local file and completes the upload.
package multipart
