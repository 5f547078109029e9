package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/diewo77/ejaar/internal/lifecycle"
)

func quotationPath(id string, parts ...string) string {
	p := "/quotations/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// ListQuotations returns the quotations visible to the token owner. The
// backend answers a bare array or a page object whose items sit under
// "items" or "data", with the paging fields beside them or inside "meta".
func (c *Client) ListQuotations(ctx context.Context, opts ListOptions) (*QuotationPage, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	body, err := c.raw(ctx, "list_quotations", http.MethodGet, "/quotations", q)
	if err != nil {
		return nil, err
	}
	page, err := decodePage(body)
	if err != nil {
		return nil, fmt.Errorf("backend list_quotations: decode: %w", err)
	}
	if page.Page == 0 {
		page.Page = opts.Page
	}
	if page.Limit == 0 {
		page.Limit = opts.Limit
	}
	return page, nil
}

func decodePage(body []byte) (*QuotationPage, error) {
	page := &QuotationPage{Items: []Quotation{}}
	if len(body) == 0 {
		return page, nil
	}
	if data := gjson.GetBytes(body, "data"); data.IsObject() {
		body = []byte(data.Raw)
	}
	items := gjson.ParseBytes(body)
	if !items.IsArray() {
		items = gjson.GetBytes(body, "items")
		if !items.IsArray() {
			items = gjson.GetBytes(body, "data")
		}
	}
	if items.IsArray() {
		if err := json.Unmarshal([]byte(items.Raw), &page.Items); err != nil {
			return nil, err
		}
	}
	page.Total = len(page.Items)
	if v := pageField(body, "total"); v.Exists() {
		page.Total = int(v.Int())
	}
	page.Page = int(pageField(body, "page").Int())
	page.Limit = int(pageField(body, "limit").Int())
	return page, nil
}

func pageField(body []byte, name string) gjson.Result {
	if v := gjson.GetBytes(body, name); v.Exists() {
		return v
	}
	return gjson.GetBytes(body, "meta."+name)
}

func (c *Client) GetQuotation(ctx context.Context, id string) (*Quotation, error) {
	var out Quotation
	if err := c.do(ctx, "get_quotation", http.MethodGet, quotationPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateQuotation(ctx context.Context, in QuotationInput) (*Quotation, error) {
	var out Quotation
	if err := c.do(ctx, "create_quotation", http.MethodPost, "/quotations", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateQuotation(ctx context.Context, id string, in QuotationInput) (*Quotation, error) {
	var out Quotation
	if err := c.do(ctx, "update_quotation", http.MethodPut, quotationPath(id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatus asks the backend to move the quotation to status.
func (c *Client) UpdateStatus(ctx context.Context, id string, status lifecycle.Status, comment string) (*Quotation, error) {
	var out Quotation
	in := StatusUpdate{Status: status, Comment: comment}
	if err := c.do(ctx, "update_status", http.MethodPatch, quotationPath(id, "status"), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload is a file sent as multipart form data.
type Upload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// multipartBody builds the form in memory; uploads are bounded by the
// portal upload limit.
func multipartBody(fields map[string]string, f Upload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "file", "filename": f.Name}))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (c *Client) postMultipart(ctx context.Context, op, path string, fields map[string]string, f Upload, out any) error {
	body, ct, err := multipartBody(fields, f)
	if err != nil {
		return fmt.Errorf("backend %s: build form: %w", op, err)
	}
	resp, err := c.send(ctx, request{op: op, method: http.MethodPost, path: path, body: body, contentType: ct})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(op, resp, out)
}

// UploadDocument stores a checklist file of docType on the quotation.
func (c *Client) UploadDocument(ctx context.Context, quotationID, docType string, f Upload) (*Document, error) {
	var out Document
	err := c.postMultipart(ctx, "upload_document", quotationPath(quotationID, "documents"),
		map[string]string{"type": docType}, f, &out)
	if err != nil {
		return nil, err
	}
	if out.Type == "" {
		out.Type = docType
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, quotationID, documentID string) error {
	return c.do(ctx, "delete_document", http.MethodDelete, quotationPath(quotationID, "documents", documentID), nil, nil, nil)
}

// FlagDocument marks a stored document as needing rectification.
func (c *Client) FlagDocument(ctx context.Context, quotationID, documentID, comment string) error {
	in := DocumentFlag{Status: DocumentStatusRectification, Comment: comment}
	return c.do(ctx, "flag_document", http.MethodPatch, quotationPath(quotationID, "documents", documentID), nil, in, nil)
}

// UploadContract attaches the signed contract.
func (c *Client) UploadContract(ctx context.Context, quotationID string, f Upload) (*Contract, error) {
	var out Contract
	if err := c.postMultipart(ctx, "upload_contract", quotationPath(quotationID, "contract"), nil, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadContract streams the signed contract. The caller closes Body.
func (c *Client) DownloadContract(ctx context.Context, quotationID string) (*Download, error) {
	resp, err := c.send(ctx, request{op: "download_contract", method: http.MethodGet, path: quotationPath(quotationID, "contract")})
	if err != nil {
		return nil, err
	}
	d := &Download{
		Name:        "contrat-" + quotationID + ".pdf",
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		d.Name = params["filename"]
	}
	if d.ContentType == "" || strings.HasPrefix(d.ContentType, "application/json") {
		d.ContentType = "application/pdf"
	}
	return d, nil
}

// ListClients returns the client directory used when a supplier creates a
// quotation.
func (c *Client) ListClients(ctx context.Context, query string) ([]Party, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	var out []Party
	if err := c.do(ctx, "list_clients", http.MethodGet, "/clients", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Party{}
	}
	return out, nil
}
