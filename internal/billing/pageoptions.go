package billing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/bills/pkg/apperror"
)

// Order は口座一覧の並び順。
type Order string

const (
	// OrderAsc は作成日時の古い順。
	OrderAsc Order = "ASC"
	// OrderDesc は作成日時の新しい順。
	OrderDesc Order = "DESC"
)

// BillsPageOptions は口座一覧のページング条件。正規化済みの値を持つ。
type BillsPageOptions struct {
	Page  int
	Size  int
	Order Order
}

// Offset はページの先頭位置を返す。
func (o BillsPageOptions) Offset() int {
	return (o.Page - 1) * o.Size
}

// billsPageQuery はクエリ文字列のバインド先。未指定の項目はnilのまま残る。
type billsPageQuery struct {
	Page  *int    `form:"page" binding:"omitempty,min=1"`
	Size  *int    `form:"size" binding:"omitempty,min=1"`
	Order *string `form:"order"`
}

// bindBillsPageOptions はクエリ文字列からページング条件を読み取り、
// デフォルト値を補って正規化する。不正な値は ValidationError を返す。
func bindBillsPageOptions(c *gin.Context, defaultSize, maxSize int) (BillsPageOptions, error) {
	var q billsPageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return BillsPageOptions{}, validationFromBinding("ページング条件が不正です", err)
	}

	opts := BillsPageOptions{Page: 1, Size: defaultSize, Order: OrderDesc}
	if q.Page != nil {
		opts.Page = *q.Page
	}
	if q.Size != nil {
		if *q.Size > maxSize {
			return BillsPageOptions{}, apperror.Validation("ページング条件が不正です",
				fmt.Sprintf("size は %d 以下で指定してください", maxSize))
		}
		opts.Size = *q.Size
	}
	// (page-1)*size が int に収まる範囲に制限する
	if maxPage := math.MaxInt / opts.Size; opts.Page > maxPage {
		return BillsPageOptions{}, apperror.Validation("ページング条件が不正です",
			fmt.Sprintf("page は %d 以下で指定してください", maxPage))
	}
	if q.Order != nil {
		switch order := Order(strings.ToUpper(*q.Order)); order {
		case OrderAsc, OrderDesc:
			opts.Order = order
		default:
			return BillsPageOptions{}, apperror.Validation("ページング条件が不正です",
				"order は ASC または DESC で指定してください")
		}
	}
	return opts, nil
}

// validationFromBinding はgin/validatorのバインドエラーを ValidationError に変換する。
func validationFromBinding(msg string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(msg, err.Error())
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		if fe.Param() != "" {
			details = append(details, fmt.Sprintf("%s は %s=%s を満たす必要があります", field, fe.Tag(), fe.Param()))
		} else {
			details = append(details, fmt.Sprintf("%s は %s を満たす必要があります", field, fe.Tag()))
		}
	}
	return apperror.Validation(msg, details...)
}
