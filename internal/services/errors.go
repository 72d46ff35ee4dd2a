// Package services defines the business logic for admin settings, homework
// analysis, test generation, and tutor chat. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; the
// handler layer translates them into HTTP status codes.
package services

import "errors"

var (
	// ErrSubmissionNotFound indicates the requested homework submission does
	// not exist.
	ErrSubmissionNotFound = errors.New("homework submission not found")

	// ErrContextNotFound indicates no follow-up context exists for the
	// homework submission.
	ErrContextNotFound = errors.New("homework context not found")

	// ErrTestNotFound indicates the requested generated test does not exist.
	ErrTestNotFound = errors.New("generated test not found")

	// ErrConversationNotFound indicates the requested chat conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyContent is returned when a homework submission has no content.
	ErrEmptyContent = errors.New("submission content is empty")

	// ErrEmptyQuestion is returned when a follow-up request carries no
	// question text.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrUnknownSubject is returned when a subject is not in the catalog.
	ErrUnknownSubject = errors.New("unknown subject")

	// ErrSubjectNotAllowed is returned when the active AI backend does not
	// cover the requested subject.
	ErrSubjectNotAllowed = errors.New("subject not available for the active AI backend")

	// ErrInvalidQuestionCount is returned when a test-generation request asks
	// for a non-positive number of questions.
	ErrInvalidQuestionCount = errors.New("question count must be positive")

	// ErrEmptyTest is returned when the AI backend produced no questions for
	// a test-generation request.
	ErrEmptyTest = errors.New("no questions were generated")

	// ErrInvalidMessages is returned when a chat request carries no messages.
	ErrInvalidMessages = errors.New("messages are missing or empty")

	// ErrAPIKeyMissing is returned when no OpenRouter API key is configured
	// in either the stored settings or the environment fallback.
	ErrAPIKeyMissing = errors.New("OpenRouter API key is not configured")

	// ErrImageKeyMissing is returned when no ImgBB API key is configured.
	ErrImageKeyMissing = errors.New("ImgBB API key is not configured")
)
