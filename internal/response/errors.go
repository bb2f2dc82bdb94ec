package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrUnauthenticated    ErrCode = "UNAUTHENTICATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden          ErrCode = "FORBIDDEN"
	ErrParticipantOnly    ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrOperatorAccessOnly ErrCode = "OPERATOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Tryout-specific ───────────────────────────────────────────────
	ErrTryoutNotAvailable ErrCode = "TRYOUT_NOT_AVAILABLE"
	ErrTryoutClosed       ErrCode = "TRYOUT_WINDOW_CLOSED"
	ErrTryoutNotPublished ErrCode = "TRYOUT_NOT_PUBLISHED"
	ErrTryoutNotDraft     ErrCode = "TRYOUT_NOT_DRAFT"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrNoActiveAttempt  ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptFinished  ErrCode = "ATTEMPT_ALREADY_FINISHED"
	ErrBatchTooLarge    ErrCode = "EVENT_BATCH_TOO_LARGE"
	ErrNoFurtherSubtest ErrCode = "NO_FURTHER_SUBTEST"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email atau kata sandi salah."
	case ErrUnauthenticated:
		return "Silakan masuk terlebih dahulu untuk mengerjakan tryout."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrParticipantOnly:
		return "Sumber daya ini terbatas untuk peserta."
	case ErrOperatorAccessOnly:
		return "Sumber daya ini terbatas untuk operator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Tryout-specific ───────────────────────────────────────────────
	case ErrTryoutNotAvailable:
		return "Tryout ini saat ini tidak tersedia."
	case ErrTryoutClosed:
		return "Periode pengerjaan tryout ini sudah ditutup."
	case ErrTryoutNotPublished:
		return "Tryout ini belum dipublikasikan."
	case ErrTryoutNotDraft:
		return "Tryout ini tidak dalam status DRAFT."
	case ErrNoQuestions:
		return "Tryout ini tidak memiliki pertanyaan."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrNoActiveAttempt:
		return "Anda belum memulai tryout ini."
	case ErrAttemptFinished:
		return "Pengerjaan tryout ini sudah dikumpulkan."
	case ErrBatchTooLarge:
		return "Jumlah jawaban yang dikirim sekaligus melebihi batas."
	case ErrNoFurtherSubtest:
		return "Tidak ada subtes berikutnya."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
