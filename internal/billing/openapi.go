package billing

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

// bearerAuthScheme は JWT 認証のセキュリティスキーム名。
const bearerAuthScheme = "bearerAuth"

// operationSpec は1エンドポイント分のAPI定義。
type operationSpec struct {
	Method        string
	Path          string
	OperationID   string
	Summary       string
	Tag           string
	Roles         []string
	Parameters    []*openapi3.Parameter
	RequestBody   string
	SuccessStatus int
	Response      string
	Errors        []int
}

// errorDescriptions はエラーステータスごとの説明。
var errorDescriptions = map[int]string{
	http.StatusBadRequest:          "入力値が不正",
	http.StatusUnauthorized:        "認証されていない",
	http.StatusForbidden:           "ロールが許可されていない",
	http.StatusConflict:            "既に登録されている",
	http.StatusInternalServerError: "内部エラー",
}

// operationRegistry はサービスが公開する全エンドポイントの定義。
// ハンドラの実装とは独立して管理し、/openapi.json の生成にのみ使う。
func operationRegistry(cfg Config) []operationSpec {
	billRoles := []string{RoleUser, RoleAdmin}
	authErrors := []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError}

	return []operationSpec{
		{
			Method:      http.MethodGet,
			Path:        "/Bills",
			OperationID: "userBills",
			Summary:     "ユーザーの口座一覧を取得する",
			Tag:         "Bills",
			Roles:       billRoles,
			Parameters: []*openapi3.Parameter{
				openapi3.NewQueryParameter("page").
					WithDescription("ページ番号").
					WithSchema(openapi3.NewIntegerSchema().WithMin(1).WithDefault(1)),
				openapi3.NewQueryParameter("size").
					WithDescription("1ページあたりの件数").
					WithSchema(openapi3.NewIntegerSchema().
						WithMin(1).
						WithMax(float64(cfg.MaxPageSize)).
						WithDefault(cfg.DefaultPageSize)),
				openapi3.NewQueryParameter("order").
					WithDescription("作成日時の並び順（大文字小文字は区別しない）").
					WithSchema(openapi3.NewStringSchema().
						WithEnum(string(OrderAsc), string(OrderDesc)).
						WithDefault(string(OrderDesc))),
			},
			SuccessStatus: http.StatusOK,
			Response:      "BillsPage",
			Errors:        append([]int{http.StatusBadRequest}, authErrors...),
		},
		{
			Method:        http.MethodGet,
			Path:          "/Bills/amountMoney",
			OperationID:   "userAmountMoney",
			Summary:       "他ユーザーから受け取った金額の合計を取得する",
			Tag:           "Bills",
			Roles:         billRoles,
			SuccessStatus: http.StatusOK,
			Response:      "TotalAmountMoney",
			Errors:        authErrors,
		},
		{
			Method:        http.MethodGet,
			Path:          "/Bills/accountBalance",
			OperationID:   "userAccountBalance",
			Summary:       "全口座の残高合計を取得する",
			Tag:           "Bills",
			Roles:         billRoles,
			SuccessStatus: http.StatusOK,
			Response:      "TotalAccountBalance",
			Errors:        authErrors,
		},
		{
			Method:        http.MethodGet,
			Path:          "/Bills/accountBalanceHistory",
			OperationID:   "userAccountBalanceHistory",
			Summary:       "残高の推移を取得する",
			Tag:           "Bills",
			Roles:         billRoles,
			SuccessStatus: http.StatusOK,
			Response:      "TotalAccountBalanceHistory",
			Errors:        authErrors,
		},
		{
			Method:      http.MethodGet,
			Path:        "/Bills/{accountBillNumber}/search",
			OperationID: "searchBills",
			Summary:     "口座番号の前方一致で他ユーザーの口座を検索する",
			Tag:         "Bills",
			Roles:       billRoles,
			Parameters: []*openapi3.Parameter{
				openapi3.NewPathParameter("accountBillNumber").
					WithDescription("口座番号の先頭部分").
					WithSchema(openapi3.NewStringSchema()),
			},
			SuccessStatus: http.StatusOK,
			Response:      "SearchBillsPayload",
			Errors:        append([]int{http.StatusBadRequest}, authErrors...),
		},
		{
			Method:        http.MethodPost,
			Path:          "/auth/register",
			OperationID:   "register",
			Summary:       "ユーザーを登録する",
			Tag:           "Auth",
			RequestBody:   "RegisterRequest",
			SuccessStatus: http.StatusCreated,
			Response:      "AuthResponse",
			Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
		},
		{
			Method:        http.MethodPost,
			Path:          "/auth/login",
			OperationID:   "login",
			Summary:       "ログインしてトークンを取得する",
			Tag:           "Auth",
			RequestBody:   "LoginRequest",
			SuccessStatus: http.StatusOK,
			Response:      "AuthResponse",
			Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
		},
	}
}

// schemaRegistry はレスポンス・リクエストのスキーマ定義を返す。
// $ref は同じマップ内のスキーマを指すので、参照先を先に組み立てる。
func schemaRegistry() openapi3.Schemas {
	schemas := openapi3.Schemas{}
	add := func(name string, schema *openapi3.Schema) {
		schemas[name] = openapi3.NewSchemaRef("", schema)
	}
	str := openapi3.NewStringSchema
	integer := openapi3.NewIntegerSchema

	add("BillItem", object(map[string]*openapi3.Schema{
		"id":                openapi3.NewUUIDSchema(),
		"accountBillNumber": str(),
		"amountMoney":       str(),
		"currencyName":      str(),
		"createdAt":         openapi3.NewDateTimeSchema(),
	}))
	add("PageMeta", object(map[string]*openapi3.Schema{
		"page":            integer(),
		"size":            integer(),
		"itemCount":       integer(),
		"pageCount":       integer(),
		"hasPreviousPage": openapi3.NewBoolSchema(),
		"hasNextPage":     openapi3.NewBoolSchema(),
	}))
	add("BillsPage", openapi3.NewObjectSchema().
		WithPropertyRef("data", arrayOf(ref(schemas, "BillItem"))).
		WithPropertyRef("meta", ref(schemas, "PageMeta")))
	add("TotalAmountMoney", object(map[string]*openapi3.Schema{
		"amountMoney":  str(),
		"currencyName": str(),
	}))
	add("TotalAccountBalance", object(map[string]*openapi3.Schema{
		"accountBalance": str(),
		"currencyName":   str(),
	}))
	add("BalancePoint", object(map[string]*openapi3.Schema{
		"timestamp": openapi3.NewDateTimeSchema(),
		"balance":   str(),
	}))
	add("TotalAccountBalanceHistory", openapi3.NewObjectSchema().
		WithPropertyRef("accountBalanceHistory", arrayOf(ref(schemas, "BalancePoint"))).
		WithProperty("currencyName", str()))
	add("SearchBill", object(map[string]*openapi3.Schema{
		"id":                openapi3.NewUUIDSchema(),
		"accountBillNumber": str(),
		"currencyName":      str(),
		"user": object(map[string]*openapi3.Schema{
			"firstName": str(),
			"lastName":  str(),
		}),
	}))
	add("SearchBillsPayload", openapi3.NewObjectSchema().
		WithPropertyRef("bills", arrayOf(ref(schemas, "SearchBill"))))
	add("RegisterRequest", object(map[string]*openapi3.Schema{
		"email":     str().WithFormat("email"),
		"password":  str().WithMinLength(8).WithMaxLength(72),
		"firstName": str().WithMaxLength(100),
		"lastName":  str().WithMaxLength(100),
	}).WithRequired([]string{"email", "password", "firstName", "lastName"}))
	add("LoginRequest", object(map[string]*openapi3.Schema{
		"email":    str().WithFormat("email"),
		"password": str(),
	}).WithRequired([]string{"email", "password"}))
	add("AuthResponse", object(map[string]*openapi3.Schema{
		"token": str(),
		"user": object(map[string]*openapi3.Schema{
			"id":        openapi3.NewUUIDSchema(),
			"email":     str(),
			"firstName": str(),
			"lastName":  str(),
			"role":      str().WithEnum(RoleUser, RoleAdmin),
		}),
		"bill": object(map[string]*openapi3.Schema{
			"accountBillNumber": str(),
			"currencyName":      str(),
		}),
	}))
	add("ErrorResponse", object(map[string]*openapi3.Schema{
		"error":      str(),
		"code":       str(),
		"details":    openapi3.NewArraySchema().WithItems(str()),
		"request_id": str(),
	}))
	return schemas
}

func object(properties map[string]*openapi3.Schema) *openapi3.Schema {
	return openapi3.NewObjectSchema().WithProperties(properties)
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	schema := openapi3.NewArraySchema()
	schema.Items = items
	return openapi3.NewSchemaRef("", schema)
}

// ref は登録済みスキーマへの $ref を返す。
func ref(schemas openapi3.Schemas, name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, schemas[name].Value)
}

// buildOpenAPIDocument はレジストリからOpenAPI 3のドキュメントを組み立てる。
func buildOpenAPIDocument(cfg Config) *openapi3.T {
	schemas := schemaRegistry()

	paths := openapi3.NewPaths()
	for _, op := range operationRegistry(cfg) {
		item := paths.Value(op.Path)
		if item == nil {
			item = &openapi3.PathItem{}
			paths.Set(op.Path, item)
		}
		item.SetOperation(op.Method, operationObject(schemas, op))
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "Bills API",
			Version: "1.0.0",
		},
		Paths: paths,
		Components: &openapi3.Components{
			Schemas: schemas,
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerAuthScheme: &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
	}
}

func operationObject(schemas openapi3.Schemas, op operationSpec) *openapi3.Operation {
	responses := openapi3.NewResponsesWithCapacity(len(op.Errors) + 1)
	responses.Set(strconv.Itoa(op.SuccessStatus), &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(http.StatusText(op.SuccessStatus)).
			WithJSONSchemaRef(ref(schemas, op.Response)),
	})
	for _, status := range op.Errors {
		responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(errorDescriptions[status]).
				WithJSONSchemaRef(ref(schemas, "ErrorResponse")),
		})
	}

	operation := openapi3.NewOperation()
	operation.OperationID = op.OperationID
	operation.Summary = op.Summary
	operation.Tags = []string{op.Tag}
	operation.Responses = responses
	for _, p := range op.Parameters {
		operation.AddParameter(p)
	}
	if len(op.Roles) > 0 {
		security := openapi3.NewSecurityRequirements().
			With(openapi3.NewSecurityRequirement().Authenticate(bearerAuthScheme))
		operation.Security = security
		operation.Extensions = map[string]any{"x-roles": op.Roles}
	}
	if op.RequestBody != "" {
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(ref(schemas, op.RequestBody)),
		}
	}
	return operation
}
