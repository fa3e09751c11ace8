package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	localeKey     = "locale"
	defaultLocale = "th"
)

// User-facing texts. Error keys are apperror kinds; raw error detail is only
// added to responses in debug mode.
var messages = map[string]map[string]string{
	"th": {
		"VALIDATION_ERROR":  "ข้อมูลไม่ถูกต้อง กรุณาตรวจสอบแล้วลองใหม่",
		"FORBIDDEN":         "คุณไม่มีสิทธิ์ดำเนินการนี้",
		"NOT_FOUND":         "ไม่พบข้อมูลที่ต้องการ",
		"CONFLICT":          "ไม่สามารถดำเนินการได้ในสถานะปัจจุบัน กรุณาลองใหม่",
		"STORAGE_ERROR":     "ไม่สามารถบันทึกไฟล์ได้ กรุณาลองใหม่ภายหลัง",
		"PERSISTENCE_ERROR": "เกิดข้อผิดพลาดของระบบ กรุณาลองใหม่ภายหลัง",
		"UNAUTHORIZED":      "กรุณาเข้าสู่ระบบ",
		"CSRF":              "คำขอไม่ถูกต้อง กรุณารีเฟรชหน้าแล้วลองใหม่",

		"ok":                 "สำเร็จ",
		"listing.created":    "สร้างประกาศเรียบร้อยแล้ว",
		"listing.updated":    "อัปเดตประกาศเรียบร้อยแล้ว",
		"listing.deleted":    "ลบประกาศเรียบร้อยแล้ว",
		"booking.created":    "จองพื้นที่เรียบร้อยแล้ว",
		"booking.existing":   "คุณได้จองพื้นที่นี้ในวันดังกล่าวไว้แล้ว",
		"booking.approved":   "อนุมัติการจองเรียบร้อยแล้ว",
		"booking.rejected":   "ปฏิเสธการจองเรียบร้อยแล้ว",
		"booking.cancelled":  "ยกเลิกการจองเรียบร้อยแล้ว",
		"slip.received":      "อัปโหลดสลิปเรียบร้อยแล้ว",
		"contract.issued":    "ออกสัญญาเรียบร้อยแล้ว",
		"contract.activated": "เปิดใช้งานสัญญาเรียบร้อยแล้ว",
		"payment.submitted":  "ส่งหลักฐานการชำระเงินเรียบร้อยแล้ว",
		"payment.confirmed":  "ยืนยันการชำระเงินเรียบร้อยแล้ว",
		"payment.rejected":   "ปฏิเสธการชำระเงินเรียบร้อยแล้ว",
		"fee.saved":          "บันทึกค่าธรรมเนียมเรียบร้อยแล้ว",
	},
	"en": {
		"VALIDATION_ERROR":  "The submitted data is invalid, please check and try again",
		"FORBIDDEN":         "You are not allowed to do this",
		"NOT_FOUND":         "The requested record was not found",
		"CONFLICT":          "This cannot be done in the current state, please try again",
		"STORAGE_ERROR":     "The file could not be saved, please try again later",
		"PERSISTENCE_ERROR": "Something went wrong, please try again later",
		"UNAUTHORIZED":      "Please sign in",
		"CSRF":              "Invalid request, please refresh the page and try again",

		"ok":                 "Success",
		"listing.created":    "Listing created",
		"listing.updated":    "Listing updated",
		"listing.deleted":    "Listing deleted",
		"booking.created":    "Booking created",
		"booking.existing":   "You already booked this listing for that date",
		"booking.approved":   "Booking approved",
		"booking.rejected":   "Booking rejected",
		"booking.cancelled":  "Booking cancelled",
		"slip.received":      "Payment slip uploaded",
		"contract.issued":    "Contract issued",
		"contract.activated": "Contract activated",
		"payment.submitted":  "Payment submitted",
		"payment.confirmed":  "Payment confirmed",
		"payment.rejected":   "Payment rejected",
		"fee.saved":          "Fee saved",
	},
}

// LocaleMiddleware picks th or en from ?lang, then Accept-Language, then the default
func LocaleMiddleware(fallback string) gin.HandlerFunc {
	if _, ok := messages[fallback]; !ok {
		fallback = defaultLocale
	}
	return func(c *gin.Context) {
		locale := fallback
		for _, candidate := range []string{c.Query("lang"), c.GetHeader("Accept-Language")} {
			candidate = strings.ToLower(strings.TrimSpace(candidate))
			if len(candidate) >= 2 {
				if _, ok := messages[candidate[:2]]; ok {
					locale = candidate[:2]
					break
				}
			}
		}
		c.Set(localeKey, locale)
		c.Next()
	}
}

func message(c *gin.Context, key string) string {
	locale := c.GetString(localeKey)
	table, ok := messages[locale]
	if !ok {
		table = messages[defaultLocale]
	}
	if m, ok := table[key]; ok {
		return m
	}
	return messages["en"][key]
}
