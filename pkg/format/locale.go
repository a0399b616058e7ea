package format

import (
	"fmt"

	"github.com/openelt/nsgateway/pkg/models"
)

// DefaultLocale is used when a custom-locale request names no dictionary.
const DefaultLocale = "vi"

// FieldAlias maps one internal field name to its localized display name.
type FieldAlias struct {
	Internal string
	Display  string
}

// Dictionary is an ordered field-name translation table. Order is kept
// so configuration diffs stay stable; Apply builds a lookup index per
// call, which is fine at the sizes dictionaries reach.
type Dictionary []FieldAlias

// Validate rejects duplicate internal or display names.
func (d Dictionary) Validate() error {
	internals := make(map[string]bool, len(d))
	displays := make(map[string]bool, len(d))
	for _, a := range d {
		if a.Internal == "" || a.Display == "" {
			return fmt.Errorf("locale alias with empty name: %+v", a)
		}
		if internals[a.Internal] {
			return fmt.Errorf("duplicate internal field %q", a.Internal)
		}
		if displays[a.Display] {
			return fmt.Errorf("duplicate display name %q", a.Display)
		}
		internals[a.Internal] = true
		displays[a.Display] = true
	}
	return nil
}

// Apply returns a copy of the record with mapped field names replaced by
// their display names. Unmapped fields pass through unchanged; values
// are never touched.
func (d Dictionary) Apply(r models.Record) models.Record {
	display := make(map[string]string, len(d))
	for _, a := range d {
		display[a.Internal] = a.Display
	}

	out := make(models.Record, len(r))
	for k, v := range r {
		if name, ok := display[k]; ok {
			out[name] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// builtinLocales returns the statically declared dictionaries. The
// Vietnamese sales-order dictionary mirrors the field aliases of the
// sales-order detail report.
func builtinLocales() map[string]Dictionary {
	return map[string]Dictionary{
		"vi": {
			{"kho_hang", "Kho hàng"},
			{"class_name", "Hình thức bán hàng / Class"},
			{"ngay_so", "Ngày SO"},
			{"don_hang", "Đơn hàng"},
			{"ma_dh_kd", "Mã DH (KD)"},
			{"ten_khach_hang", "Tên khách hàng"},
			{"ma_hang", "Mã hàng"},
			{"mo_ta_day_du", "Mô tả đầy đủ"},
			{"loai_hang", "Loại Hàng"},
			{"so_luong", "Số lượng"},
			{"don_gia", "Đơn giá"},
			{"thanh_tien_so", "Thành tiền (SO)"},
			{"so_chung_tu_xuat", "Số chứng từ xuất"},
			{"ngay_xuat", "Ngày xuất"},
			{"so_luong_da_xuat", "Số lượng đã xuất (TẤM)"},
			{"tien_vat", "Tiền VAT"},
			{"tien_chiet_khau", "Tiền chiết khấu"},
			{"tong_tien_gom_vat", "Tổng tiền gồm VAT"},
			{"dien_giai", "Diễn giải"},
			{"trang_thai", "Trạng thái"},
		},
	}
}
