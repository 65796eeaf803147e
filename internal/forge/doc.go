// Package forge talks to the content host API that stores the node
// configuration and content tree documents.
package forge
