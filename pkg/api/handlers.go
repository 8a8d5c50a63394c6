package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/productledger/pkg/products"
	"github.com/Mindburn-Labs/productledger/pkg/wallet"
)

type connectRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type connectResponse struct {
	Token         string `json:"token"`
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	token, id, err := s.issuer.Issue(req.WalletAddress)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, connectResponse{Token: token, WalletAddress: id.String()})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseMultipart(w, r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	price, err := products.ParsePrice(form.value("price"))
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	quantity, err := parseUint(form.value("quantity"), "quantity", false)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	amount, err := parseUint(form.value("amount"), "amount", true)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	assets, err := readAssets(form.File["files"])
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.Mint(ctx, products.MintRequest{
		Name:        form.value("name"),
		Description: form.value("description"),
		Brand:       form.value("brand"),
		Category:    form.value("category"),
		Size:        form.value("size"),
		Price:       price,
		Quantity:    quantity,
		Amount:      amount,
		Status:      form.value("status"),
		Assets:      assets,
	})
	s.writeResult(w, r, http.StatusCreated, res, err)
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	form, err := s.parseMultipart(w, r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	assets, err := readAssets(form.File["newFiles"])
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.UpdateMetadata(ctx, id, products.MetadataUpdate{
		Name:        form.value("name"),
		Description: form.value("description"),
		Brand:       form.value("brand"),
		Category:    form.value("category"),
		Size:        form.value("size"),
		Status:      form.value("status"),
		ImageCIDs:   products.ParseCIDList(form.Value["imageCids"]...),
		FileCIDs:    products.ParseCIDList(form.Value["fileCids"]...),
		NewAssets:   assets,
	})
	s.writeResult(w, r, http.StatusOK, res, err)
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	var req struct {
		Price json.Number `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	price, err := products.ParsePrice(req.Price.String())
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.UpdatePrice(ctx, id, price)
	s.writeResult(w, r, http.StatusOK, res, err)
}

func (s *Server) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity *uint64 `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if req.Quantity == nil {
		WriteBadRequest(w, "quantity is required")
		return
	}

	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.UpdateQuantity(ctx, id, *req.Quantity)
	s.writeResult(w, r, http.StatusOK, res, err)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.UpdateStatus(ctx, id, req.Status)
	s.writeResult(w, r, http.StatusOK, res, err)
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.Burn(ctx, id)
	s.writeResult(w, r, http.StatusOK, res, err)
}

type buyRequest struct {
	TokenIDs   []products.TokenID `json:"tokenIds"`
	Amounts    []uint64           `json:"amounts"`
	TotalPrice json.Number        `json:"totalPrice"`
	Email      string             `json:"email"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	total, err := decimal.NewFromString(req.TotalPrice.String())
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("totalPrice: %v", err))
		return
	}

	ctx, cancel := s.mutationContext(r)
	defer cancel()
	res, err := s.products.Buy(ctx, products.BuyRequest{
		TokenIDs:   req.TokenIDs,
		Amounts:    req.Amounts,
		TotalPrice: total,
		Email:      req.Email,
	})
	s.writeResult(w, r, http.StatusOK, res, err)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.products.GetAllTokenIDs(r.Context())
	if err != nil {
		s.writeResult(w, r, 0, nil, err)
		return
	}
	if ids == nil {
		ids = []products.TokenID{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"count": len(ids), "tokenIds": ids})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	state, err := s.products.GetProductInfo(r.Context(), id)
	s.writeResult(w, r, http.StatusOK, state, err)
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	owners, err := s.products.GetTokenOwners(r.Context(), id)
	if err != nil {
		s.writeResult(w, r, 0, nil, err)
		return
	}
	if owners == nil {
		owners = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tokenId": id, "owners": owners})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	holder, err := wallet.Parse(r.URL.Query().Get("wallet"))
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	balance, err := s.products.GetTokenBalance(r.Context(), holder, id)
	if err != nil {
		s.writeResult(w, r, 0, nil, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tokenId": id, "wallet": holder, "balance": balance.String()})
}

func (s *Server) handleMetadataURL(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	url, err := s.products.GetMetadataURL(r.Context(), id)
	if err != nil {
		s.writeResult(w, r, 0, nil, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tokenId": id, "metadataUrl": url})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	trail, err := s.products.GetAuditTrail(r.Context(), id)
	s.writeResult(w, r, http.StatusOK, trail, err)
}

func pathTokenID(w http.ResponseWriter, r *http.Request) (products.TokenID, bool) {
	id, err := products.ParseTokenID(r.PathValue("id"))
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

type multipartForm struct {
	*multipart.Form
}

func (f multipartForm) value(key string) string {
	if vs := f.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (multipartForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return multipartForm{}, fmt.Errorf("invalid multipart body: %w", err)
	}
	return multipartForm{r.MultipartForm}, nil
}

func parseUint(s, field string, optional bool) (uint64, error) {
	if s == "" {
		if optional {
			return 0, nil
		}
		return 0, fmt.Errorf("%s is required", field)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer", field)
	}
	return v, nil
}

func readAssets(headers []*multipart.FileHeader) ([]products.Asset, error) {
	assets := make([]products.Asset, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		assets = append(assets, products.Asset{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return assets, nil
}
